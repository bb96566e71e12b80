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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ChannelState is the off-chain state both parties agree on.
type ChannelState struct {
	BalanceA *big.Int
	BalanceB *big.Int
	SeqnoA   uint64
	SeqnoB   uint64
}

// NewChannelState returns the state a freshly opened channel starts in.
func NewChannelState(balanceA, balanceB *big.Int) ChannelState {
	return ChannelState{
		BalanceA: new(big.Int).Set(orZero(balanceA)),
		BalanceB: new(big.Int).Set(orZero(balanceB)),
	}
}

// Clone returns a deep copy of s.
func (s ChannelState) Clone() ChannelState {
	return ChannelState{
		BalanceA: new(big.Int).Set(orZero(s.BalanceA)),
		BalanceB: new(big.Int).Set(orZero(s.BalanceB)),
		SeqnoA:   s.SeqnoA,
		SeqnoB:   s.SeqnoB,
	}
}

func (s ChannelState) Equal(o ChannelState) bool {
	return s.SeqnoA == o.SeqnoA && s.SeqnoB == o.SeqnoB &&
		orZero(s.BalanceA).Cmp(orZero(o.BalanceA)) == 0 &&
		orZero(s.BalanceB).Cmp(orZero(o.BalanceB)) == 0
}

// Total returns BalanceA + BalanceB.
func (s ChannelState) Total() *big.Int {
	return new(big.Int).Add(orZero(s.BalanceA), orZero(s.BalanceB))
}

// Valid checks that both balances are set and non-negative.
func (s ChannelState) Valid() error {
	if s.BalanceA == nil || s.BalanceB == nil {
		return fmt.Errorf("%w: missing balance", ErrEncoding)
	}
	if s.BalanceA.Sign() < 0 || s.BalanceB.Sign() < 0 {
		return fmt.Errorf("%w: negative balance", ErrEncoding)
	}
	return nil
}

func (s ChannelState) String() string {
	return fmt.Sprintf("{A: %s/%d, B: %s/%d}", orZero(s.BalanceA), s.SeqnoA, orZero(s.BalanceB), s.SeqnoB)
}

// ToCell encodes the state as coins A, coins B, seqno A, seqno B.
func (s ChannelState) ToCell() (*cell.Cell, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	b := cell.BeginCell()
	if err := storeCoins(b, s.BalanceA); err != nil {
		return nil, err
	}
	if err := storeCoins(b, s.BalanceB); err != nil {
		return nil, err
	}
	if err := storeUint(b, s.SeqnoA, SeqnoBits); err != nil {
		return nil, err
	}
	if err := storeUint(b, s.SeqnoB, SeqnoBits); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (s *ChannelState) FromCell(c *cell.Cell) error {
	sl := c.BeginParse()
	a, err := sl.LoadBigCoins()
	if err != nil {
		return err
	}
	b, err := sl.LoadBigCoins()
	if err != nil {
		return err
	}
	seqnoA, err := sl.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	seqnoB, err := sl.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	*s = ChannelState{BalanceA: a, BalanceB: b, SeqnoA: seqnoA, SeqnoB: seqnoB}
	return nil
}

func (s ChannelState) MarshalBinary() ([]byte, error) {
	c, err := s.ToCell()
	if err != nil {
		return nil, err
	}
	return c.ToBOC(), nil
}

func (s *ChannelState) UnmarshalBinary(data []byte) error {
	c, err := cell.FromBOC(data)
	if err != nil {
		return err
	}
	return s.FromCell(c)
}

// jsonState is the form clients exchange states in: all four fields as
// lowercase hex without prefix.
type jsonState struct {
	BalanceA string `json:"balanceA"`
	BalanceB string `json:"balanceB"`
	SeqnoA   string `json:"seqnoA"`
	SeqnoB   string `json:"seqnoB"`
}

func (s ChannelState) MarshalJSON() ([]byte, error) {
	if err := s.Valid(); err != nil {
		return nil, err
	}
	return json.Marshal(jsonState{
		BalanceA: s.BalanceA.Text(16),
		BalanceB: s.BalanceB.Text(16),
		SeqnoA:   strconv.FormatUint(s.SeqnoA, 16),
		SeqnoB:   strconv.FormatUint(s.SeqnoB, 16),
	})
}

func (s *ChannelState) UnmarshalJSON(data []byte) error {
	var j jsonState
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	a, err := ParseHexInt(j.BalanceA)
	if err != nil {
		return fmt.Errorf("balanceA: %w", err)
	}
	b, err := ParseHexInt(j.BalanceB)
	if err != nil {
		return fmt.Errorf("balanceB: %w", err)
	}
	seqnoA, err := parseHexUint64(j.SeqnoA)
	if err != nil {
		return fmt.Errorf("seqnoA: %w", err)
	}
	seqnoB, err := parseHexUint64(j.SeqnoB)
	if err != nil {
		return fmt.Errorf("seqnoB: %w", err)
	}
	st := ChannelState{BalanceA: a, BalanceB: b, SeqnoA: seqnoA, SeqnoB: seqnoB}
	if err := st.Valid(); err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseChannelState decodes the JSON wire form of a state.
func ParseChannelState(data []byte) (ChannelState, error) {
	var s ChannelState
	if err := json.Unmarshal(data, &s); err != nil {
		if errors.Is(err, ErrEncoding) {
			return ChannelState{}, err
		}
		return ChannelState{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return s, nil
}

var errEmptyNumber = errors.New("empty number")

// ParseHexInt parses a hex integer with an optional sign and 0x prefix.
func ParseHexInt(s string) (*big.Int, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, errEmptyNumber)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: invalid hex number %q", ErrEncoding, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

func parseHexUint64(s string) (uint64, error) {
	v, err := ParseHexInt(s)
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrEncoding, s)
	}
	return v.Uint64(), nil
}
