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

package wire

import (
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Get-methods of the channel contract.
const (
	MethodGetChannelState = "get_channel_state"
	MethodGetChannelData  = "get_channel_data"
)

// ChannelStatus is the lifecycle state of the channel contract.
type ChannelStatus uint8

const (
	StatusUninited ChannelStatus = iota
	StatusOpen
	StatusClosureStarted
	StatusSettlingConditionals
	StatusAwaitingFinalization
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusUninited:
		return "UNINITED"
	case StatusOpen:
		return "OPEN"
	case StatusClosureStarted:
		return "CLOSURE_STARTED"
	case StatusSettlingConditionals:
		return "SETTLING_CONDITIONALS"
	case StatusAwaitingFinalization:
		return "AWAITING_FINALIZATION"
	default:
		return fmt.Sprintf("ChannelStatus(%d)", uint8(s))
	}
}

func statusFromInt(v *big.Int) (ChannelStatus, error) {
	if !v.IsUint64() || v.Uint64() > uint64(StatusAwaitingFinalization) {
		return 0, fmt.Errorf("%w: unknown channel status %s", ErrEncoding, v)
	}
	return ChannelStatus(v.Uint64()), nil
}

// ChannelStatusFromResult decodes the result of get_channel_state. A failed
// call means the contract is not deployed or not initialized yet.
func ChannelStatusFromResult(res GetMethodResult) (ChannelStatus, error) {
	if res.ExitCode < 0 {
		return StatusUninited, nil
	}
	v, err := ParseStack(res.Stack)
	if err != nil {
		return 0, err
	}
	code, err := AsInt(v)
	if err != nil {
		return 0, err
	}
	return statusFromInt(code)
}

// ChannelData is the on-chain storage of a channel as reported by
// get_channel_data.
type ChannelData struct {
	Status                   ChannelStatus
	BalanceA                 *big.Int
	BalanceB                 *big.Int
	PublicKeyA               []byte
	PublicKeyB               []byte
	ChannelID                *big.Int
	QuarantineDuration       uint32
	MisbehaviorFine          *big.Int
	ConditionalCloseDuration uint32
	SeqnoA                   uint64
	SeqnoB                   uint64
	// Quarantine is nil unless an uncooperative close is in progress.
	Quarantine *cell.Cell
	ExcessFee  *big.Int
	AddressA   *address.Address
	AddressB   *address.Address
}

// ChannelDataFromResult decodes the result of get_channel_data.
func ChannelDataFromResult(res GetMethodResult) (ChannelData, error) {
	if res.ExitCode != 0 {
		return ChannelData{}, fmt.Errorf("get_channel_data failed with exit code %d", res.ExitCode)
	}
	v, err := ParseStack(res.Stack)
	if err != nil {
		return ChannelData{}, err
	}
	return ChannelDataFromStack(v)
}

// ChannelDataFromStack decodes a parsed get_channel_data stack.
func ChannelDataFromStack(v any) (ChannelData, error) {
	top, err := AsList(v, 8)
	if err != nil {
		return ChannelData{}, err
	}
	var d ChannelData

	state, err := AsInt(top[0])
	if err != nil {
		return ChannelData{}, fmt.Errorf("state: %w", err)
	}
	if d.Status, err = statusFromInt(state); err != nil {
		return ChannelData{}, err
	}

	balances, err := intList(top[1], 2)
	if err != nil {
		return ChannelData{}, fmt.Errorf("balances: %w", err)
	}
	d.BalanceA, d.BalanceB = balances[0], balances[1]

	keys, err := intList(top[2], 2)
	if err != nil {
		return ChannelData{}, fmt.Errorf("keys: %w", err)
	}
	if d.PublicKeyA, err = keyBytes(keys[0]); err != nil {
		return ChannelData{}, err
	}
	if d.PublicKeyB, err = keyBytes(keys[1]); err != nil {
		return ChannelData{}, err
	}

	if d.ChannelID, err = AsInt(top[3]); err != nil {
		return ChannelData{}, fmt.Errorf("channel id: %w", err)
	}

	closing, err := intList(top[4], 3)
	if err != nil {
		return ChannelData{}, fmt.Errorf("closing config: %w", err)
	}
	if d.QuarantineDuration, err = uint32Of(closing[0]); err != nil {
		return ChannelData{}, err
	}
	d.MisbehaviorFine = closing[1]
	if d.ConditionalCloseDuration, err = uint32Of(closing[2]); err != nil {
		return ChannelData{}, err
	}

	seqnos, err := intList(top[5], 2)
	if err != nil {
		return ChannelData{}, fmt.Errorf("seqnos: %w", err)
	}
	for i, dst := range []*uint64{&d.SeqnoA, &d.SeqnoB} {
		if !seqnos[i].IsUint64() {
			return ChannelData{}, fmt.Errorf("%w: seqno %s out of range", ErrEncoding, seqnos[i])
		}
		*dst = seqnos[i].Uint64()
	}

	if c, ok := top[6].(*cell.Cell); ok {
		d.Quarantine = c
	}

	payment, err := AsList(top[7], 3)
	if err != nil {
		return ChannelData{}, fmt.Errorf("payment config: %w", err)
	}
	if d.ExcessFee, err = AsInt(payment[0]); err != nil {
		return ChannelData{}, fmt.Errorf("excess fee: %w", err)
	}
	if d.AddressA, err = addrOf(payment[1]); err != nil {
		return ChannelData{}, fmt.Errorf("address A: %w", err)
	}
	if d.AddressB, err = addrOf(payment[2]); err != nil {
		return ChannelData{}, fmt.Errorf("address B: %w", err)
	}
	return d, nil
}

// State returns the balances and committed seqnos as a ChannelState.
func (d ChannelData) State() ChannelState {
	return ChannelState{
		BalanceA: new(big.Int).Set(orZero(d.BalanceA)),
		BalanceB: new(big.Int).Set(orZero(d.BalanceB)),
		SeqnoA:   d.SeqnoA,
		SeqnoB:   d.SeqnoB,
	}
}

func intList(v any, n int) ([]*big.Int, error) {
	l, err := AsList(v, n)
	if err != nil {
		return nil, err
	}
	ints := make([]*big.Int, n)
	for i, e := range l {
		if ints[i], err = AsInt(e); err != nil {
			return nil, err
		}
	}
	return ints, nil
}

func keyBytes(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 || v.BitLen() > PublicKeyBits {
		return nil, fmt.Errorf("%w: public key out of range", ErrEncoding)
	}
	return v.FillBytes(make([]byte, PublicKeyLength)), nil
}

func uint32Of(v *big.Int) (uint32, error) {
	if !v.IsUint64() || v.Uint64() > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s does not fit into 32 bits", ErrEncoding, v)
	}
	return uint32(v.Uint64()), nil
}

func addrOf(v any) (*address.Address, error) {
	c, err := AsCell(v)
	if err != nil {
		return nil, err
	}
	return c.BeginParse().LoadAddr()
}
