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

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// SemiChannelBody is what one party attests about itself: its seqno and the
// total amount it has sent so far.
type SemiChannelBody struct {
	Seqno uint64
	Sent  *big.Int
	// Conditionals is an opaque HashmapE 32 of conditional payments. Nil means
	// the map is empty.
	Conditionals *cell.Cell
}

func (b SemiChannelBody) store(builder *cell.Builder) error {
	if err := storeUint(builder, b.Seqno, SeqnoBits); err != nil {
		return err
	}
	if err := storeCoins(builder, b.Sent); err != nil {
		return err
	}
	return storeMaybeRef(builder, b.Conditionals)
}

func (b *SemiChannelBody) load(s *cell.Slice) error {
	seqno, err := s.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	sent, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	conditionals, err := loadMaybeRefCell(s)
	if err != nil {
		return err
	}
	b.Seqno = seqno
	b.Sent = sent
	b.Conditionals = conditionals
	return nil
}

func (b SemiChannelBody) ToCell() (*cell.Cell, error) {
	builder := cell.BeginCell()
	if err := b.store(builder); err != nil {
		return nil, err
	}
	return builder.EndCell(), nil
}

func (b *SemiChannelBody) FromCell(c *cell.Cell) error {
	return b.load(c.BeginParse())
}

// SemiChannelState is the unit a party signs off-chain. Data is the signer's
// own body, Counterparty the last known body of the other party.
type SemiChannelState struct {
	ChannelID    *big.Int
	Data         SemiChannelBody
	Counterparty *SemiChannelBody
}

func (s SemiChannelState) store(b *cell.Builder) error {
	if err := storeUint(b, uint64(TagState), OpBits); err != nil {
		return err
	}
	if err := storeChannelID(b, s.ChannelID); err != nil {
		return err
	}
	if err := s.Data.store(b); err != nil {
		return err
	}
	var counterparty *cell.Cell
	if s.Counterparty != nil {
		var err error
		if counterparty, err = s.Counterparty.ToCell(); err != nil {
			return err
		}
	}
	return storeMaybeRef(b, counterparty)
}

func (s *SemiChannelState) load(sl *cell.Slice) error {
	if err := loadTag(sl, TagState); err != nil {
		return err
	}
	id, err := loadChannelID(sl)
	if err != nil {
		return err
	}
	var data SemiChannelBody
	if err := data.load(sl); err != nil {
		return err
	}
	ref, err := loadMaybeRefCell(sl)
	if err != nil {
		return err
	}
	var counterparty *SemiChannelBody
	if ref != nil {
		counterparty = new(SemiChannelBody)
		if err := counterparty.FromCell(ref); err != nil {
			return fmt.Errorf("counterparty body: %w", err)
		}
	}
	s.ChannelID = id
	s.Data = data
	s.Counterparty = counterparty
	return nil
}

func (s SemiChannelState) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := s.store(b); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (s *SemiChannelState) FromCell(c *cell.Cell) error {
	return s.load(c.BeginParse())
}

func SemiChannelStateFromCell(c *cell.Cell) (SemiChannelState, error) {
	var s SemiChannelState
	err := (&s).FromCell(c)
	return s, err
}

// SignedSemiChannelState is a semi-channel state prefixed with the signature
// over its cell hash.
type SignedSemiChannelState struct {
	Signature []byte
	State     SemiChannelState
}

func (s SignedSemiChannelState) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeSignature(b, s.Signature); err != nil {
		return nil, err
	}
	if err := s.State.store(b); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (s *SignedSemiChannelState) FromCell(c *cell.Cell) error {
	sl := c.BeginParse()
	sig, err := sl.LoadSlice(SignatureBits)
	if err != nil {
		return err
	}
	var state SemiChannelState
	if err := state.load(sl); err != nil {
		return err
	}
	s.Signature = sig
	s.State = state
	return nil
}

func SignedSemiChannelStateFromCell(c *cell.Cell) (SignedSemiChannelState, error) {
	var s SignedSemiChannelState
	err := (&s).FromCell(c)
	return s, err
}
