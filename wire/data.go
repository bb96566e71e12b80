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
	"bytes"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ClosingConfig parametrizes the uncooperative close of a channel. Durations
// are in seconds.
type ClosingConfig struct {
	QuarantineDuration       uint32
	MisbehaviorFine          *big.Int
	ConditionalCloseDuration uint32
}

func (c ClosingConfig) ToCell() (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(c.QuarantineDuration), durationBits); err != nil {
		return nil, err
	}
	if err := storeCoins(b, c.MisbehaviorFine); err != nil {
		return nil, err
	}
	if err := storeUint(b, uint64(c.ConditionalCloseDuration), durationBits); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (c *ClosingConfig) FromCell(cl *cell.Cell) error {
	s := cl.BeginParse()
	quarantine, err := s.LoadUInt(durationBits)
	if err != nil {
		return err
	}
	fine, err := s.LoadBigCoins()
	if err != nil {
		return err
	}
	conditional, err := s.LoadUInt(durationBits)
	if err != nil {
		return err
	}
	c.QuarantineDuration = uint32(quarantine)
	c.MisbehaviorFine = fine
	c.ConditionalCloseDuration = uint32(conditional)
	return nil
}

// ChannelConfig is the public identity of a channel. Together with the
// contract code it determines the channel address.
type ChannelConfig struct {
	Workchain    int8
	ChannelID    *big.Int
	PublicKeyA   []byte
	PublicKeyB   []byte
	AddressA     *address.Address
	AddressB     *address.Address
	InitBalanceA *big.Int
	InitBalanceB *big.Int
	// ExcessFee defaults to zero.
	ExcessFee *big.Int
	// Closing is optional. The zero closing config is used when it is nil.
	Closing *ClosingConfig
}

// InitialData builds the storage image the contract is deployed with.
func (c ChannelConfig) InitialData() (*cell.Cell, error) {
	closing := ClosingConfig{}
	if c.Closing != nil {
		closing = *c.Closing
	}
	closingCell, err := closing.ToCell()
	if err != nil {
		return nil, fmt.Errorf("closing config: %w", err)
	}
	payment := cell.BeginCell()
	if err := storeCoins(payment, c.ExcessFee); err != nil {
		return nil, err
	}
	if err := storeAddr(payment, c.AddressA); err != nil {
		return nil, err
	}
	if err := storeAddr(payment, c.AddressB); err != nil {
		return nil, err
	}

	b := cell.BeginCell()
	if err := storeBool(b, false); err != nil { // inited
		return nil, err
	}
	if err := storeCoins(b, nil); err != nil {
		return nil, err
	}
	if err := storeCoins(b, nil); err != nil {
		return nil, err
	}
	if err := storePublicKey(b, c.PublicKeyA); err != nil {
		return nil, err
	}
	if err := storePublicKey(b, c.PublicKeyB); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, c.ChannelID); err != nil {
		return nil, err
	}
	if err := storeRef(b, closingCell); err != nil {
		return nil, err
	}
	if err := storeUint(b, 0, storageSeqnoBits); err != nil {
		return nil, err
	}
	if err := storeUint(b, 0, storageSeqnoBits); err != nil {
		return nil, err
	}
	if err := storeMaybeRef(b, nil); err != nil { // quarantine
		return nil, err
	}
	if err := storeRef(b, payment.EndCell()); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

// ConfigFromInitialData recovers the config from a storage image built by
// InitialData. Initial balances are not part of the image and stay zero;
// the closing config is always set.
func ConfigFromInitialData(data *cell.Cell, workchain int8) (ChannelConfig, error) {
	s := data.BeginParse()
	if _, err := s.LoadBoolBit(); err != nil { // inited
		return ChannelConfig{}, err
	}
	for i := 0; i < 2; i++ {
		if _, err := s.LoadBigCoins(); err != nil {
			return ChannelConfig{}, err
		}
	}
	keyA, err := s.LoadSlice(PublicKeyBits)
	if err != nil {
		return ChannelConfig{}, err
	}
	keyB, err := s.LoadSlice(PublicKeyBits)
	if err != nil {
		return ChannelConfig{}, err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return ChannelConfig{}, err
	}
	closingCell, err := s.LoadRefCell()
	if err != nil {
		return ChannelConfig{}, err
	}
	closing := new(ClosingConfig)
	if err := closing.FromCell(closingCell); err != nil {
		return ChannelConfig{}, fmt.Errorf("closing config: %w", err)
	}
	if _, err := s.LoadUInt(storageSeqnoBits); err != nil {
		return ChannelConfig{}, err
	}
	if _, err := s.LoadUInt(storageSeqnoBits); err != nil {
		return ChannelConfig{}, err
	}
	if _, err := loadMaybeRefCell(s); err != nil { // quarantine
		return ChannelConfig{}, err
	}
	payment, err := s.LoadRef()
	if err != nil {
		return ChannelConfig{}, err
	}
	fee, err := payment.LoadBigCoins()
	if err != nil {
		return ChannelConfig{}, err
	}
	addrA, err := payment.LoadAddr()
	if err != nil {
		return ChannelConfig{}, err
	}
	addrB, err := payment.LoadAddr()
	if err != nil {
		return ChannelConfig{}, err
	}
	return ChannelConfig{
		Workchain:    workchain,
		ChannelID:    id,
		PublicKeyA:   keyA,
		PublicKeyB:   keyB,
		AddressA:     addrA,
		AddressB:     addrB,
		InitBalanceA: new(big.Int),
		InitBalanceB: new(big.Int),
		ExcessFee:    fee,
		Closing:      closing,
	}, nil
}

// ToCell encodes the full config for backups. Unlike InitialData it keeps
// the initial balances and the workchain.
func (c ChannelConfig) ToCell() (*cell.Cell, error) {
	keys := cell.BeginCell()
	if err := storePublicKey(keys, c.PublicKeyA); err != nil {
		return nil, err
	}
	if err := storePublicKey(keys, c.PublicKeyB); err != nil {
		return nil, err
	}
	addrs := cell.BeginCell()
	if err := storeAddr(addrs, c.AddressA); err != nil {
		return nil, err
	}
	if err := storeAddr(addrs, c.AddressB); err != nil {
		return nil, err
	}
	var closing *cell.Cell
	if c.Closing != nil {
		var err error
		if closing, err = c.Closing.ToCell(); err != nil {
			return nil, err
		}
	}

	b := cell.BeginCell()
	if err := capacity(b.StoreInt(int64(c.Workchain), 8)); err != nil {
		return nil, err
	}
	if err := storeChannelID(b, c.ChannelID); err != nil {
		return nil, err
	}
	for _, v := range []*big.Int{c.InitBalanceA, c.InitBalanceB, c.ExcessFee} {
		if err := storeCoins(b, v); err != nil {
			return nil, err
		}
	}
	if err := storeRef(b, keys.EndCell()); err != nil {
		return nil, err
	}
	if err := storeRef(b, addrs.EndCell()); err != nil {
		return nil, err
	}
	if err := storeMaybeRef(b, closing); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

func (c *ChannelConfig) FromCell(cl *cell.Cell) error {
	s := cl.BeginParse()
	wc, err := s.LoadInt(8)
	if err != nil {
		return err
	}
	id, err := loadChannelID(s)
	if err != nil {
		return err
	}
	amounts := make([]*big.Int, 3)
	for i := range amounts {
		if amounts[i], err = s.LoadBigCoins(); err != nil {
			return err
		}
	}
	keys, err := s.LoadRef()
	if err != nil {
		return err
	}
	keyA, err := keys.LoadSlice(PublicKeyBits)
	if err != nil {
		return err
	}
	keyB, err := keys.LoadSlice(PublicKeyBits)
	if err != nil {
		return err
	}
	addrs, err := s.LoadRef()
	if err != nil {
		return err
	}
	addrA, err := addrs.LoadAddr()
	if err != nil {
		return err
	}
	addrB, err := addrs.LoadAddr()
	if err != nil {
		return err
	}
	closingCell, err := loadMaybeRefCell(s)
	if err != nil {
		return err
	}
	var closing *ClosingConfig
	if closingCell != nil {
		closing = new(ClosingConfig)
		if err := closing.FromCell(closingCell); err != nil {
			return err
		}
	}
	*c = ChannelConfig{
		Workchain:    int8(wc),
		ChannelID:    id,
		PublicKeyA:   keyA,
		PublicKeyB:   keyB,
		AddressA:     addrA,
		AddressB:     addrB,
		InitBalanceA: amounts[0],
		InitBalanceB: amounts[1],
		ExcessFee:    amounts[2],
		Closing:      closing,
	}
	return nil
}

func (c ChannelConfig) MarshalBinary() ([]byte, error) {
	cl, err := c.ToCell()
	if err != nil {
		return nil, err
	}
	return cl.ToBOC(), nil
}

func (c *ChannelConfig) UnmarshalBinary(data []byte) error {
	cl, err := cell.FromBOC(data)
	if err != nil {
		return err
	}
	return c.FromCell(cl)
}

// Equal reports whether both configs describe the same channel. Nil amounts
// compare equal to zero.
func (c ChannelConfig) Equal(o ChannelConfig) bool {
	if c.Workchain != o.Workchain ||
		!bytes.Equal(c.PublicKeyA, o.PublicKeyA) ||
		!bytes.Equal(c.PublicKeyB, o.PublicKeyB) ||
		!sameAddr(c.AddressA, o.AddressA) ||
		!sameAddr(c.AddressB, o.AddressB) {
		return false
	}
	for _, p := range [][2]*big.Int{
		{c.ChannelID, o.ChannelID},
		{c.InitBalanceA, o.InitBalanceA},
		{c.InitBalanceB, o.InitBalanceB},
		{c.ExcessFee, o.ExcessFee},
	} {
		if orZero(p[0]).Cmp(orZero(p[1])) != 0 {
			return false
		}
	}
	if (c.Closing == nil) != (o.Closing == nil) {
		return false
	}
	if c.Closing != nil {
		x, y := c.Closing, o.Closing
		return x.QuarantineDuration == y.QuarantineDuration &&
			x.ConditionalCloseDuration == y.ConditionalCloseDuration &&
			orZero(x.MisbehaviorFine).Cmp(orZero(y.MisbehaviorFine)) == 0
	}
	return true
}

// Clone returns a deep copy. Nil amounts are replaced by zero.
func (c ChannelConfig) Clone() ChannelConfig {
	clone := c
	clone.ChannelID = new(big.Int).Set(orZero(c.ChannelID))
	clone.InitBalanceA = new(big.Int).Set(orZero(c.InitBalanceA))
	clone.InitBalanceB = new(big.Int).Set(orZero(c.InitBalanceB))
	clone.ExcessFee = new(big.Int).Set(orZero(c.ExcessFee))
	clone.PublicKeyA = append([]byte(nil), c.PublicKeyA...)
	clone.PublicKeyB = append([]byte(nil), c.PublicKeyB...)
	if c.Closing != nil {
		closing := *c.Closing
		closing.MisbehaviorFine = new(big.Int).Set(orZero(c.Closing.MisbehaviorFine))
		clone.Closing = &closing
	}
	return clone
}

// Snapshot is what a party needs to resume a channel: the public config, its
// role and the last agreed state.
type Snapshot struct {
	Config ChannelConfig
	IsA    bool
	State  ChannelState
}

func (s Snapshot) MarshalBinary() ([]byte, error) {
	cfg, err := s.Config.ToCell()
	if err != nil {
		return nil, err
	}
	state, err := s.State.ToCell()
	if err != nil {
		return nil, err
	}
	b := cell.BeginCell()
	if err := storeBool(b, s.IsA); err != nil {
		return nil, err
	}
	if err := storeRef(b, cfg); err != nil {
		return nil, err
	}
	if err := storeRef(b, state); err != nil {
		return nil, err
	}
	return b.EndCell().ToBOC(), nil
}

func (s *Snapshot) UnmarshalBinary(data []byte) error {
	cl, err := cell.FromBOC(data)
	if err != nil {
		return err
	}
	sl := cl.BeginParse()
	isA, err := sl.LoadBoolBit()
	if err != nil {
		return err
	}
	cfgCell, err := sl.LoadRefCell()
	if err != nil {
		return err
	}
	stateCell, err := sl.LoadRefCell()
	if err != nil {
		return err
	}
	var cfg ChannelConfig
	if err := cfg.FromCell(cfgCell); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var state ChannelState
	if err := state.FromCell(stateCell); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	s.Config, s.IsA, s.State = cfg, isA, state
	return nil
}

func sameAddr(a, b *address.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Workchain() == b.Workchain() && bytes.Equal(a.Data(), b.Data())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
