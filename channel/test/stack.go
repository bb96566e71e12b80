// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"perun.network/perun-ton-backend/wire"
)

// StatusStack is the get_channel_state stack for status.
func StatusStack(status wire.ChannelStatus) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(fmt.Sprintf(`["num","0x%x"]`, uint8(status)))}
}

// DataStack is the get_channel_data stack for d, in the format toncenter
// returns it.
func DataStack(d wire.ChannelData) []json.RawMessage {
	quarantine := `["list",{"@type":"tvm.list","elements":[]}]`
	if d.Quarantine != nil {
		quarantine = fmt.Sprintf(`["cell",{"bytes":%q}]`, base64.StdEncoding.EncodeToString(d.Quarantine.ToBOC()))
	}
	entries := []string{
		fmt.Sprintf(`["num","0x%x"]`, uint8(d.Status)),
		tupleEntry(number(d.BalanceA), number(d.BalanceB)),
		tupleEntry(number(new(big.Int).SetBytes(d.PublicKeyA)), number(new(big.Int).SetBytes(d.PublicKeyB))),
		fmt.Sprintf(`["num","0x%x"]`, orZero(d.ChannelID)),
		tupleEntry(number(big.NewInt(int64(d.QuarantineDuration))), number(d.MisbehaviorFine),
			number(big.NewInt(int64(d.ConditionalCloseDuration)))),
		tupleEntry(number(new(big.Int).SetUint64(d.SeqnoA)), number(new(big.Int).SetUint64(d.SeqnoB))),
		quarantine,
		tupleEntry(number(d.ExcessFee), slice(d.AddressA), slice(d.AddressB)),
	}
	stack := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		stack[i] = json.RawMessage(e)
	}
	return stack
}

func tupleEntry(elems ...string) string {
	return `["tuple",{"@type":"tvm.tuple","elements":[` + strings.Join(elems, ",") + `]}]`
}

func number(v *big.Int) string {
	return fmt.Sprintf(`{"@type":"tvm.stackEntryNumber","number":{"@type":"tvm.numberDecimal","number":%q}}`, orZero(v).String())
}

func slice(addr *address.Address) string {
	c := cell.BeginCell().MustStoreAddr(addr).EndCell()
	return fmt.Sprintf(`{"@type":"tvm.stackEntrySlice","slice":{"@type":"tvm.slice","bytes":%q}}`,
		base64.StdEncoding.EncodeToString(c.ToBOC()))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
