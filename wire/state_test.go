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

package wire_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"perun.network/perun-ton-backend/wire"
)

func TestChannelStateJSON(t *testing.T) {
	s := wire.ChannelState{
		BalanceA: big.NewInt(999_999_850),
		BalanceB: big.NewInt(150),
		SeqnoA:   1,
		SeqnoB:   0,
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `{"balanceA":"3b9ac96a","balanceB":"96","seqnoA":"1","seqnoB":"0"}`, string(data))

	got, err := wire.ParseChannelState(data)
	require.NoError(t, err)
	require.True(t, s.Equal(got))

	got, err = wire.ParseChannelState([]byte(`{"balanceA":"0x3B9AC96A","balanceB":"96","seqnoA":"0x1","seqnoB":"0"}`))
	require.NoError(t, err)
	require.True(t, s.Equal(got))
}

func TestChannelStateJSONRejects(t *testing.T) {
	for _, in := range []string{
		`{"balanceA":"-1","balanceB":"0","seqnoA":"0","seqnoB":"0"}`,
		`{"balanceA":"zz","balanceB":"0","seqnoA":"0","seqnoB":"0"}`,
		`{"balanceA":"1","balanceB":"0","seqnoA":"10000000000000000","seqnoB":"0"}`,
		`{"balanceA":"1","balanceB":"","seqnoA":"0","seqnoB":"0"}`,
		`[1,2]`,
	} {
		_, err := wire.ParseChannelState([]byte(in))
		require.ErrorIs(t, err, wire.ErrEncoding, in)
	}
}

func TestChannelStateBinary(t *testing.T) {
	s := wire.NewChannelState(big.NewInt(1_000_000_000), nil)
	s.SeqnoB = 42
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	var got wire.ChannelState
	require.NoError(t, got.UnmarshalBinary(data))
	require.True(t, s.Equal(got))
	require.Zero(t, got.Total().Cmp(big.NewInt(1_000_000_000)))
}

func TestChannelStateClone(t *testing.T) {
	s := wire.NewChannelState(big.NewInt(10), big.NewInt(5))
	c := s.Clone()
	c.BalanceA.SetInt64(0)
	c.SeqnoA++
	require.Equal(t, int64(10), s.BalanceA.Int64())
	require.Zero(t, s.SeqnoA)
}
