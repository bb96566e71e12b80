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
	"math/big"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Body is a message body that can be placed into a cell.
type Body interface {
	ToCell() (*cell.Cell, error)
}

// TopUpBalance adds funds to the channel. It is sent unsigned and carries its
// op code directly.
type TopUpBalance struct {
	CoinsA *big.Int
	CoinsB *big.Int
}

func (m TopUpBalance) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(OpTopUpBalance), OpBits); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.CoinsA); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.CoinsB); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (m *TopUpBalance) FromCell(c *cell.Cell) error {
	s := c.BeginParse()
	if err := loadTag(s, OpTopUpBalance); err != nil {
		return err
	}
	a, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	b, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	m.CoinsA, m.CoinsB = a, b
	return nil
}

// InitChannel is the signed part of init_channel.
type InitChannel struct {
	ChannelID *big.Int
	BalanceA  *big.Int
	BalanceB  *big.Int
}

func (m InitChannel) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(TagInit), OpBits); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, m.ChannelID); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.BalanceA); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.BalanceB); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (m *InitChannel) FromCell(c *cell.Cell) error {
	s := c.BeginParse()
	if err := loadTag(s, TagInit); err != nil {
		return err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return err
	}
	a, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	b, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	m.ChannelID, m.BalanceA, m.BalanceB = id, a, b
	return nil
}

// CooperativeClose is the signed part of cooperative_close. Both parties sign
// the same cell.
type CooperativeClose struct {
	ChannelID *big.Int
	BalanceA  *big.Int
	BalanceB  *big.Int
	SeqnoA    uint64
	SeqnoB    uint64
}

func (m CooperativeClose) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(TagCooperativeClose), OpBits); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, m.ChannelID); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.BalanceA); err != nil {
		return nil, err
	}
	if err := storeCoins(b, m.BalanceB); err != nil {
		return nil, err
	}
	if err := storeUint(b, m.SeqnoA, SeqnoBits); err != nil {
		return nil, err
	}
	if err := storeUint(b, m.SeqnoB, SeqnoBits); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (m *CooperativeClose) FromCell(c *cell.Cell) error {
	s := c.BeginParse()
	if err := loadTag(s, TagCooperativeClose); err != nil {
		return err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return err
	}
	a, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	b, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	seqnoA, err := s.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	seqnoB, err := s.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	m.ChannelID, m.BalanceA, m.BalanceB = id, a, b
	m.SeqnoA, m.SeqnoB = seqnoA, seqnoB
	return nil
}

// CooperativeCommit is the signed part of cooperative_commit.
type CooperativeCommit struct {
	ChannelID *big.Int
	SeqnoA    uint64
	SeqnoB    uint64
}

func (m CooperativeCommit) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(TagCooperativeCommit), OpBits); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, m.ChannelID); err != nil {
		return nil, err
	}
	if err := storeUint(b, m.SeqnoA, SeqnoBits); err != nil {
		return nil, err
	}
	if err := storeUint(b, m.SeqnoB, SeqnoBits); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (m *CooperativeCommit) FromCell(c *cell.Cell) error {
	s := c.BeginParse()
	if err := loadTag(s, TagCooperativeCommit); err != nil {
		return err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return err
	}
	seqnoA, err := s.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	seqnoB, err := s.LoadUInt(SeqnoBits)
	if err != nil {
		return err
	}
	m.ChannelID, m.SeqnoA, m.SeqnoB = id, seqnoA, seqnoB
	return nil
}

// StartUncooperativeClose is the signed part of start_uncooperative_close.
// SignedStateA and SignedStateB are signed semi-channel state cells.
type StartUncooperativeClose struct {
	ChannelID    *big.Int
	SignedStateA *cell.Cell
	SignedStateB *cell.Cell
}

func (m StartUncooperativeClose) ToCell() (*cell.Cell, error) {
	return disputeCell(TagStartUncooperativeClose, m.ChannelID, m.SignedStateA, m.SignedStateB)
}

func (m *StartUncooperativeClose) FromCell(c *cell.Cell) (err error) {
	m.ChannelID, m.SignedStateA, m.SignedStateB, err = loadDisputeCell(c, TagStartUncooperativeClose)
	return err
}

// ChallengeQuarantinedState is the signed part of challenge_quarantined_state.
type ChallengeQuarantinedState struct {
	ChannelID    *big.Int
	SignedStateA *cell.Cell
	SignedStateB *cell.Cell
}

func (m ChallengeQuarantinedState) ToCell() (*cell.Cell, error) {
	return disputeCell(TagChallengeState, m.ChannelID, m.SignedStateA, m.SignedStateB)
}

func (m *ChallengeQuarantinedState) FromCell(c *cell.Cell) (err error) {
	m.ChannelID, m.SignedStateA, m.SignedStateB, err = loadDisputeCell(c, TagChallengeState)
	return err
}

func disputeCell(tag uint32, id *big.Int, a, b *cell.Cell) (*cell.Cell, error) {
	builder := cell.BeginCell()
	if err := storeUint(builder, uint64(tag), OpBits); err != nil {
		return nil, err
	}
	if err := storeChannelID(builder, id); err != nil {
		return nil, err
	}
	if err := storeRef(builder, a); err != nil {
		return nil, err
	}
	if err := storeRef(builder, b); err != nil {
		return nil, err
	}
	return builder.EndCell(), nil
}

func loadDisputeCell(c *cell.Cell, tag uint32) (*big.Int, *cell.Cell, *cell.Cell, error) {
	s := c.BeginParse()
	if err := loadTag(s, tag); err != nil {
		return nil, nil, nil, err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := s.LoadRefCell()
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := s.LoadRefCell()
	if err != nil {
		return nil, nil, nil, err
	}
	return id, a, b, nil
}

// SettleConditionals is the signed part of settle_conditionals. Conditional
// payments are not interpreted; a nil map is encoded as absent.
type SettleConditionals struct {
	ChannelID    *big.Int
	Conditionals *cell.Cell
}

func (m SettleConditionals) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(TagSettleConditionals), OpBits); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, m.ChannelID); err != nil {
		return nil, err
	}
	if err := storeMaybeRef(b, m.Conditionals); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (m *SettleConditionals) FromCell(c *cell.Cell) error {
	s := c.BeginParse()
	if err := loadTag(s, TagSettleConditionals); err != nil {
		return err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return err
	}
	conditionals, err := loadMaybeRefCell(s)
	if err != nil {
		return err
	}
	m.ChannelID, m.Conditionals = id, conditionals
	return nil
}

// FinishUncooperativeClose carries only its op code.
type FinishUncooperativeClose struct{}

func (FinishUncooperativeClose) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(OpFinishUncooperativeClose), OpBits); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}
