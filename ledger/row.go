// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wallet/types"
	"perun.network/perun-ton-backend/wire"
)

// Row is the service's record of one channel. The client is party A, the
// service party B. Amounts are decimal nanotons, keys and the client's
// signature over the current state hex.
type Row struct {
	ChannelID             string `gorm:"primaryKey;size:32"`
	ClientAddress         string `gorm:"not null"`
	ClientPublicKey       string `gorm:"size:64;not null"`
	ClientInitialBalance  string `gorm:"not null"`
	ClientCurrentBalance  string `gorm:"not null"`
	ClientSeqNo           uint64 `gorm:"not null"`
	ServiceAddress        string `gorm:"not null"`
	ServicePublicKey      string `gorm:"size:64;not null"`
	ServiceInitialBalance string `gorm:"not null"`
	ServiceCurrentBalance string `gorm:"not null"`
	ServiceSeqNo          uint64 `gorm:"not null"`
	ClientSignature       string `gorm:"size:128"`
	Initialized           bool   `gorm:"not null;default:false"`
	Closed                bool   `gorm:"not null;default:false"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (Row) TableName() string {
	return "channels"
}

// ChannelIDString formats a channel id the way rows and the API key it.
func ChannelIDString(id *big.Int) string {
	return id.Text(16)
}

// ParseChannelID parses a hex channel id.
func ParseChannelID(s string) (*big.Int, error) {
	id, err := wire.ParseHexInt(s)
	if err != nil {
		return nil, err
	}
	if id.Sign() < 0 || id.BitLen() > channel.ChannelIDBits {
		return nil, fmt.Errorf("%w: channel id out of range", wire.ErrEncoding)
	}
	return id, nil
}

// NewRow returns the uninitialized row of a freshly created channel.
func NewRow(id *channel.Identity) Row {
	return Row{
		ChannelID:             ChannelIDString(id.ChannelID()),
		ClientAddress:         id.Participant(true).AddressString(),
		ClientPublicKey:       hex.EncodeToString(id.PublicKey(true)),
		ClientInitialBalance:  "0",
		ClientCurrentBalance:  "0",
		ServiceAddress:        id.Participant(false).AddressString(),
		ServicePublicKey:      hex.EncodeToString(id.PublicKey(false)),
		ServiceInitialBalance: "0",
		ServiceCurrentBalance: "0",
	}
}

// Identity rebuilds the channel identity with the recorded initial
// balances.
func (r Row) Identity() (*channel.Identity, error) {
	id, err := ParseChannelID(r.ChannelID)
	if err != nil {
		return nil, err
	}
	clientAddr, err := types.ParseAddress(r.ClientAddress)
	if err != nil {
		return nil, fmt.Errorf("client address: %w", err)
	}
	serviceAddr, err := types.ParseAddress(r.ServiceAddress)
	if err != nil {
		return nil, fmt.Errorf("service address: %w", err)
	}
	clientKey, err := hex.DecodeString(r.ClientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("client key: %w", err)
	}
	serviceKey, err := hex.DecodeString(r.ServicePublicKey)
	if err != nil {
		return nil, fmt.Errorf("service key: %w", err)
	}
	ident, err := channel.CreateChannelIdentity(clientAddr, clientKey, serviceKey, serviceAddr, id)
	if err != nil {
		return nil, err
	}
	initA, err := parseAmount(r.ClientInitialBalance)
	if err != nil {
		return nil, err
	}
	initB, err := parseAmount(r.ServiceInitialBalance)
	if err != nil {
		return nil, err
	}
	return ident.WithInitBalances(initA, initB)
}

// Signature returns the client's signature over State, nil if the client
// has not signed a state yet.
func (r Row) Signature() ([]byte, error) {
	if r.ClientSignature == "" {
		return nil, nil
	}
	return wallet.DecodeSigHex(r.ClientSignature)
}

// State is the last committed channel state.
func (r Row) State() (wire.ChannelState, error) {
	a, err := parseAmount(r.ClientCurrentBalance)
	if err != nil {
		return wire.ChannelState{}, err
	}
	b, err := parseAmount(r.ServiceCurrentBalance)
	if err != nil {
		return wire.ChannelState{}, err
	}
	return wire.ChannelState{BalanceA: a, BalanceB: b, SeqnoA: r.ClientSeqNo, SeqnoB: r.ServiceSeqNo}, nil
}

func (r *Row) setState(s wire.ChannelState) {
	r.ClientCurrentBalance = s.BalanceA.String()
	r.ServiceCurrentBalance = s.BalanceB.String()
	r.ClientSeqNo = s.SeqnoA
	r.ServiceSeqNo = s.SeqnoB
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", wire.ErrEncoding, s)
	}
	return v, nil
}
