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

package channel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wallet/types"
	"perun.network/perun-ton-backend/wire"
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrKeyMismatch       = errors.New("account key does not match channel role")
	ErrInvalidIdentity   = errors.New("invalid channel identity")
)

// ChannelIDBits is the width of a channel id.
const ChannelIDBits = 128

var maxChannelID = new(big.Int).Lsh(big.NewInt(1), ChannelIDBits)

// ChainReader runs read-only get-methods of a contract.
type ChainReader interface {
	RunGetMethod(ctx context.Context, addr *address.Address, method string) (wire.GetMethodResult, error)
}

// Sender submits an external message to a contract. stateInit is only set
// for deployments.
type Sender interface {
	SendExternal(ctx context.Context, to *address.Address, stateInit *tlb.StateInit, body *cell.Cell) error
}

// Identity is the immutable public part of a channel: its config and the
// address derived from it. It is safe for concurrent use.
type Identity struct {
	config  wire.ChannelConfig
	address *address.Address
}

// NewIdentity validates cfg and derives the channel address.
func NewIdentity(cfg wire.ChannelConfig) (*Identity, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	addr, err := DeriveAddress(cfg)
	if err != nil {
		return nil, err
	}
	return &Identity{config: cfg, address: addr}, nil
}

// CreateChannelIdentity builds the identity of a channel between a client
// (party A) and the service (party B) on the basechain. Initial balances are
// zero until they are known from the chain.
func CreateChannelIdentity(clientAddress *address.Address, clientPublicKey ed25519.PublicKey,
	servicePublicKey ed25519.PublicKey, serviceAddress *address.Address, channelID *big.Int,
) (*Identity, error) {
	return NewIdentity(wire.ChannelConfig{
		Workchain:  0,
		ChannelID:  channelID,
		PublicKeyA: clientPublicKey,
		PublicKeyB: servicePublicKey,
		AddressA:   clientAddress,
		AddressB:   serviceAddress,
	})
}

func validateConfig(cfg wire.ChannelConfig) error {
	switch {
	case cfg.ChannelID == nil || cfg.ChannelID.Sign() < 0 || cfg.ChannelID.Cmp(maxChannelID) >= 0:
		return fmt.Errorf("%w: channel id out of range", ErrInvalidIdentity)
	case len(cfg.PublicKeyA) != ed25519.PublicKeySize || len(cfg.PublicKeyB) != ed25519.PublicKeySize:
		return fmt.Errorf("%w: public keys must be %d bytes", ErrInvalidIdentity, ed25519.PublicKeySize)
	case bytes.Equal(cfg.PublicKeyA, cfg.PublicKeyB):
		return fmt.Errorf("%w: both parties use the same key", ErrInvalidIdentity)
	case cfg.AddressA == nil || cfg.AddressB == nil:
		return fmt.Errorf("%w: missing withdrawal address", ErrInvalidIdentity)
	}
	for _, v := range []*big.Int{cfg.InitBalanceA, cfg.InitBalanceB, cfg.ExcessFee} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: negative amount", ErrInvalidIdentity)
		}
	}
	return nil
}

// WithInitBalances returns a copy of the identity with the given initial
// balances. The address does not depend on them.
func (id *Identity) WithInitBalances(balanceA, balanceB *big.Int) (*Identity, error) {
	if balanceA == nil || balanceB == nil || balanceA.Sign() < 0 || balanceB.Sign() < 0 {
		return nil, fmt.Errorf("%w: initial balances must be non-negative", ErrInvalidIdentity)
	}
	cfg := id.config.Clone()
	cfg.InitBalanceA = new(big.Int).Set(balanceA)
	cfg.InitBalanceB = new(big.Int).Set(balanceB)
	return &Identity{config: cfg, address: id.address}, nil
}

// Config returns a copy of the channel config.
func (id *Identity) Config() wire.ChannelConfig {
	return id.config.Clone()
}

func (id *Identity) Address() *address.Address {
	return id.address
}

func (id *Identity) ChannelID() *big.Int {
	return new(big.Int).Set(id.config.ChannelID)
}

// PublicKey returns the key of party A or B.
func (id *Identity) PublicKey(isA bool) ed25519.PublicKey {
	if isA {
		return append(ed25519.PublicKey(nil), id.config.PublicKeyA...)
	}
	return append(ed25519.PublicKey(nil), id.config.PublicKeyB...)
}

// Participant returns party A or B.
func (id *Identity) Participant(isA bool) *types.Participant {
	if isA {
		return types.NewParticipant(id.config.AddressA, id.PublicKey(true))
	}
	return types.NewParticipant(id.config.AddressB, id.PublicKey(false))
}

func (id *Identity) InitBalance(isA bool) *big.Int {
	if isA {
		return new(big.Int).Set(id.config.InitBalanceA)
	}
	return new(big.Int).Set(id.config.InitBalanceB)
}

// InitialState is the state both parties agree on right after the channel
// was initialized.
func (id *Identity) InitialState() wire.ChannelState {
	return wire.NewChannelState(id.config.InitBalanceA, id.config.InitBalanceB)
}

// GetChannelState reads the lifecycle status of the contract.
func (id *Identity) GetChannelState(ctx context.Context, r ChainReader) (wire.ChannelStatus, error) {
	res, err := r.RunGetMethod(ctx, id.address, wire.MethodGetChannelState)
	if err != nil {
		return wire.StatusUninited, fmt.Errorf("reading channel state: %w", err)
	}
	return wire.ChannelStatusFromResult(res)
}

// GetData reads and decodes the contract storage.
func (id *Identity) GetData(ctx context.Context, r ChainReader) (wire.ChannelData, error) {
	res, err := r.RunGetMethod(ctx, id.address, wire.MethodGetChannelData)
	if err != nil {
		return wire.ChannelData{}, fmt.Errorf("reading channel data: %w", err)
	}
	return wire.ChannelDataFromResult(res)
}

// Channel is one party's view of a channel: the identity, the role and the
// key the party signs with.
type Channel struct {
	*Identity
	isA     bool
	account *wallet.Account
	log     log.Embedding
}

// NewChannel binds acc to the role isA of id.
func NewChannel(id *Identity, acc *wallet.Account, isA bool) (*Channel, error) {
	if id == nil || acc == nil {
		return nil, errors.New("identity and account must be set")
	}
	if !acc.PublicKey().Equal(id.PublicKey(isA)) {
		return nil, ErrKeyMismatch
	}
	return &Channel{
		Identity: id,
		isA:      isA,
		account:  acc,
		log:      log.MakeEmbedding(log.WithField("channel", id.config.ChannelID.Text(16))),
	}, nil
}

func (c *Channel) IsA() bool {
	return c.isA
}

// CounterpartyKey returns the key signatures of the other party are checked
// against.
func (c *Channel) CounterpartyKey() ed25519.PublicKey {
	return c.PublicKey(!c.isA)
}

// WithInitBalances rebinds the channel to an identity with the given initial
// balances.
func (c *Channel) WithInitBalances(balanceA, balanceB *big.Int) (*Channel, error) {
	id, err := c.Identity.WithInitBalances(balanceA, balanceB)
	if err != nil {
		return nil, err
	}
	return &Channel{Identity: id, isA: c.isA, account: c.account, log: c.log}, nil
}

// Snapshot captures what is needed to resume the channel with state.
func (c *Channel) Snapshot(state wire.ChannelState) wire.Snapshot {
	return wire.Snapshot{Config: c.Config(), IsA: c.isA, State: state.Clone()}
}

// ChannelFromSnapshot restores a channel saved with Snapshot.
func ChannelFromSnapshot(s wire.Snapshot, acc *wallet.Account) (*Channel, wire.ChannelState, error) {
	id, err := NewIdentity(s.Config)
	if err != nil {
		return nil, wire.ChannelState{}, err
	}
	ch, err := NewChannel(id, acc, s.IsA)
	if err != nil {
		return nil, wire.ChannelState{}, err
	}
	return ch, s.State.Clone(), nil
}
