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

package test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	pkgtest "polycry.pt/poly-go/test"

	chtest "perun.network/perun-ton-backend/channel/test"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	"perun.network/perun-ton-backend/wallet"
	wtest "perun.network/perun-ton-backend/wallet/test"
	"perun.network/perun-ton-backend/wire"
)

// PollingInterval keeps tests against the simulated chain fast.
const PollingInterval = 5 * time.Millisecond

// Env is a service with an in-memory ledger on a simulated chain, and a
// client wallet that is not yet connected to it.
type Env struct {
	Chain          *chtest.Chain
	Ledger         *ledger.Ledger
	Service        *payment.Service
	ServiceAccount *wallet.Account
	ServiceAddress *address.Address
	ClientAccount  *wallet.Account
	ClientAddress  *address.Address
	// Wallet holds the client account.
	Wallet *wallet.EphemeralWallet
}

// NewEnv sets up an Env. The service is closed with the test.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	rng := pkgtest.Prng(t)
	db, err := ledger.OpenDB(ledger.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	e := &Env{
		Chain:          chtest.NewChain(),
		ServiceAccount: wtest.NewRandomAccount(rng),
		ServiceAddress: wtest.NewRandomAddress(rng),
		ClientAccount:  wtest.NewRandomAccount(rng),
		ClientAddress:  wtest.NewRandomAddress(rng),
		Wallet:         wallet.NewEphemeralWallet(),
	}
	require.NoError(t, e.Wallet.AddAccount(e.ClientAccount))
	e.Ledger = ledger.New(db, e.ServiceAccount)
	e.Service, err = payment.NewService(payment.ServiceConfig{
		Account:              e.ServiceAccount,
		Address:              e.ServiceAddress,
		Ledger:               e.Ledger,
		Reader:               e.Chain,
		Sender:               e.Chain,
		PollingInterval:      PollingInterval,
		MaxPollingAttempts:   20,
		SubscriptionInterval: PollingInterval,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Service.Close() })
	return e
}

// CreateChannel asks the service for a channel and returns its row and the
// client's payer.
func (e *Env) CreateChannel(t *testing.T) (*ledger.Row, *payment.Payer) {
	t.Helper()
	row, err := e.Service.CreateChannel(context.Background(), e.ClientAddress.String(),
		hex.EncodeToString(e.ClientAccount.PublicKey()))
	require.NoError(t, err)
	id, err := ledger.ParseChannelID(row.ChannelID)
	require.NoError(t, err)
	acc, err := e.Wallet.Unlock(e.ClientAccount.PublicKey())
	require.NoError(t, err)
	p, err := payment.NewPayer(acc, e.ClientAddress, e.ServiceAccount.PublicKey(), e.ServiceAddress,
		id, e.Chain, e.Chain, payment.PayerConfig{PollingInterval: PollingInterval, MaxPollingAttempts: 20})
	require.NoError(t, err)
	return row, p
}

// OpenChannel creates a channel, opens it with the client's deposit and
// initializes it at the service.
func (e *Env) OpenChannel(t *testing.T, deposit int64) (string, *payment.Payer) {
	t.Helper()
	ctx := context.Background()
	row, p := e.CreateChannel(t)
	_, err := p.Open(ctx, e.Chain, big.NewInt(deposit))
	require.NoError(t, err)
	_, err = e.Service.InitChannel(ctx, row.ChannelID)
	require.NoError(t, err)
	return row.ChannelID, p
}

// Wire returns the JSON form of s and the hex form of sig as a client
// submits them.
func Wire(t *testing.T, s wire.ChannelState, sig []byte) ([]byte, string) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return data, hex.EncodeToString(sig)
}

// Send has p sign a payment of amount to the service and returns the wire
// form of the signed state.
func Send(t *testing.T, p *payment.Payer, amount int64) ([]byte, string) {
	t.Helper()
	s, sig, err := p.SignSend(big.NewInt(amount))
	require.NoError(t, err)
	return Wire(t, s, sig)
}

// Receive has p sign a refund of amount by the service.
func Receive(t *testing.T, p *payment.Payer, amount int64) ([]byte, string) {
	t.Helper()
	s, sig, err := p.SignReceive(big.NewInt(amount))
	require.NoError(t, err)
	return Wire(t, s, sig)
}
