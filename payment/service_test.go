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

package payment_test

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	paytest "perun.network/perun-ton-backend/payment/test"
	"perun.network/perun-ton-backend/wire"
)

const testTimeout = 10 * time.Second

func TestPrices(t *testing.T) {
	prices := payment.DefaultPrices()
	amount, err := prices.Amount(payment.ActionView, 3)
	require.NoError(t, err)
	require.Equal(t, int64(150_000), amount.Int64())

	amount, err = prices.Amount(payment.ActionBrilliant, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000_000), amount.Int64())

	_, err = prices.Amount("dislike", 1)
	require.ErrorIs(t, err, payment.ErrUnknownAction)
	require.True(t, payment.IsReaction(payment.ActionFire))
	require.False(t, payment.IsReaction(payment.ActionView))
}

func TestPaymentFlow(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1_000_000_000)

	row, err := env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, row.Initialized)
	require.Equal(t, "1000000000", row.ClientInitialBalance)

	// Three views.
	data, sigHex := paytest.Send(t, payer, 150_000)
	row, err = env.Service.Pay(ctx, id, payment.ActionView, 3, data, sigHex)
	require.NoError(t, err)
	require.Equal(t, "150000", row.ServiceCurrentBalance)

	_, err = env.Service.Pay(ctx, id, payment.ActionView, 3, data, sigHex)
	require.ErrorIs(t, err, ledger.ErrInsufficientPayment)

	data, sigHex = paytest.Send(t, payer, 10_000_000)
	_, err = env.Service.Pay(ctx, id, payment.ActionLike, 1, data, sigHex)
	require.NoError(t, err)

	data, sigHex = paytest.Receive(t, payer, 5_000)
	row, err = env.Service.Refund(ctx, id, big.NewInt(5_000), data, sigHex)
	require.NoError(t, err)
	require.Equal(t, "989855000", row.ClientCurrentBalance)
	require.Equal(t, "10145000", row.ServiceCurrentBalance)
	require.Equal(t, uint64(2), row.ClientSeqNo)
	require.Equal(t, uint64(1), row.ServiceSeqNo)

	offer, err := env.Service.CloseChannel(ctx, id)
	require.NoError(t, err)
	require.True(t, offer.State.Equal(payer.State()))
	again, err := env.Service.CloseChannel(ctx, id)
	require.NoError(t, err)
	require.Equal(t, offer.Signature, again.Signature)

	data, sigHex = paytest.Send(t, payer, 50_000)
	_, err = env.Service.Pay(ctx, id, payment.ActionView, 1, data, sigHex)
	require.ErrorIs(t, err, ledger.ErrChannelClosed)

	require.NoError(t, payer.Close(ctx, offer.State, offer.Signature))
	closed, ok := env.Chain.Closed(payer.Channel().Address())
	require.True(t, ok)
	require.True(t, closed.Equal(offer.State))
}

func TestPayUnknownAction(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx := context.Background()
	id, payer := env.OpenChannel(t, 1000)

	data, sigHex := paytest.Send(t, payer, 10)
	_, err := env.Service.Pay(ctx, id, "dislike", 1, data, sigHex)
	require.ErrorIs(t, err, payment.ErrUnknownAction)
}

func TestPayBeforeInit(t *testing.T) {
	env := paytest.NewEnv(t)
	row, payer := env.CreateChannel(t)

	data, sigHex := paytest.Send(t, payer, 0)
	_, err := env.Service.Pay(context.Background(), row.ChannelID, payment.ActionView, 0, data, sigHex)
	require.ErrorIs(t, err, ledger.ErrChannelNotInitialized)

	_, err = env.Service.CloseChannel(context.Background(), row.ChannelID)
	require.ErrorIs(t, err, ledger.ErrChannelNotInitialized)
}

func TestInitChannelTimeout(t *testing.T) {
	env := paytest.NewEnv(t)
	row, _ := env.CreateChannel(t)

	_, err := env.Service.InitChannel(context.Background(), row.ChannelID)
	require.ErrorIs(t, err, channel.ErrOpenTimeout)

	row, err = env.Ledger.Get(context.Background(), row.ChannelID)
	require.NoError(t, err)
	require.False(t, row.Initialized)
}

func TestInitChannelIdempotent(t *testing.T) {
	env := paytest.NewEnv(t)
	id, _ := env.OpenChannel(t, 1000)
	reads := env.Chain.Reads()

	row, err := env.Service.InitChannel(context.Background(), id)
	require.NoError(t, err)
	require.True(t, row.Initialized)
	require.Equal(t, reads, env.Chain.Reads())
}

func TestCreateChannelInvalidInput(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx := context.Background()
	key := hex.EncodeToString(env.ClientAccount.PublicKey())

	_, err := env.Service.CreateChannel(ctx, "not an address", key)
	require.ErrorIs(t, err, payment.ErrInvalidInput)
	_, err = env.Service.CreateChannel(ctx, env.ClientAddress.String(), "zz")
	require.ErrorIs(t, err, payment.ErrInvalidInput)
	_, err = env.Service.CreateChannel(ctx, env.ClientAddress.String(), key[2:])
	require.ErrorIs(t, err, channel.ErrInvalidIdentity)

	a, err := env.Service.CreateChannel(ctx, env.ClientAddress.String(), key)
	require.NoError(t, err)
	b, err := env.Service.CreateChannel(ctx, env.ClientAddress.String(), key)
	require.NoError(t, err)
	require.NotEqual(t, a.ChannelID, b.ChannelID)
	require.False(t, a.Initialized)
	require.Equal(t, hex.EncodeToString(env.ServiceAccount.PublicKey()), a.ServicePublicKey)
}

func TestWatchChannelChallenges(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1_000_000)

	for i := 0; i < 2; i++ {
		data, sigHex := paytest.Send(t, payer, 50_000)
		_, err := env.Service.Pay(ctx, id, payment.ActionView, 1, data, sigHex)
		require.NoError(t, err)
	}

	watched := make(chan error, 1)
	go func() { watched <- env.Service.WatchChannel(ctx, id) }()

	// The client closes with the initial state, which the service signed.
	row, err := env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	serviceCh, err := env.Ledger.Channel(row)
	require.NoError(t, err)
	initial := serviceCh.InitialState()
	serviceSigned, err := serviceCh.SignedSemiChannelState(initial)
	require.NoError(t, err)
	client := channel.NewAdjudicator(payer.Channel(), env.Chain, env.Chain)
	require.NoError(t, client.StartUncooperativeClose(ctx, initial, serviceSigned))

	require.Eventually(t, func() bool {
		for _, s := range env.Chain.Sent() {
			op, err := s.Body.BeginParse().LoadUInt(wire.OpBits)
			if err == nil && uint32(op) == wire.OpChallengeQuarantinedState {
				return true
			}
		}
		return false
	}, testTimeout, paytest.PollingInterval)

	require.NoError(t, client.SettleConditionals(ctx, nil))
	select {
	case err := <-watched:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watcher did not finish")
	}

	_, ok := env.Chain.Closed(payer.Channel().Address())
	require.True(t, ok)
	row, err = env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, row.Closed)
}

func TestWatchClosedChannel(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1000)

	offer, err := env.Service.CloseChannel(ctx, id)
	require.NoError(t, err)
	require.NoError(t, payer.Close(ctx, offer.State, offer.Signature))

	require.NoError(t, env.Service.WatchChannel(ctx, id))
	require.ErrorIs(t, env.Service.WatchChannel(ctx, "ff"), ledger.ErrChannelNotFound)
}

func TestResumeWatching(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1_000_000)
	env.CreateChannel(t)

	n, err := env.Service.ResumeWatching(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	row, err := env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	serviceCh, err := env.Ledger.Channel(row)
	require.NoError(t, err)
	initial := serviceCh.InitialState()
	serviceSigned, err := serviceCh.SignedSemiChannelState(initial)
	require.NoError(t, err)
	client := channel.NewAdjudicator(payer.Channel(), env.Chain, env.Chain)
	require.NoError(t, client.StartUncooperativeClose(ctx, initial, serviceSigned))

	require.Eventually(t, func() bool {
		row, err := env.Ledger.Get(ctx, id)
		return err == nil && row.Closed
	}, testTimeout, paytest.PollingInterval)
}

// closeWithInitialState starts an uncooperative close from the client side
// with the initial state, which is stale once the client paid.
func closeWithInitialState(t *testing.T, env *paytest.Env, id string, payer *payment.Payer) {
	t.Helper()
	ctx := context.Background()
	row, err := env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	serviceCh, err := env.Ledger.Channel(row)
	require.NoError(t, err)
	initial := serviceCh.InitialState()
	serviceSigned, err := serviceCh.SignedSemiChannelState(initial)
	require.NoError(t, err)
	client := channel.NewAdjudicator(payer.Channel(), env.Chain, env.Chain)
	require.NoError(t, client.StartUncooperativeClose(ctx, initial, serviceSigned))
}

func challenged(env *paytest.Env) bool {
	for _, s := range env.Chain.Sent() {
		op, err := s.Body.BeginParse().LoadUInt(wire.OpBits)
		if err == nil && uint32(op) == wire.OpChallengeQuarantinedState {
			return true
		}
	}
	return false
}

func TestWatchChannelSurvivesReadErrors(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1_000_000)
	data, sigHex := paytest.Send(t, payer, 50_000)
	_, err := env.Service.Pay(ctx, id, payment.ActionView, 1, data, sigHex)
	require.NoError(t, err)

	// Subscribing reads status and data, polling adds more reads.
	reads := env.Chain.Reads()
	watched := make(chan error, 1)
	go func() { watched <- env.Service.WatchChannel(ctx, id) }()
	require.Eventually(t, func() bool { return env.Chain.Reads() >= reads+3 }, testTimeout, paytest.PollingInterval)

	env.Chain.FailReads(errors.New("node hiccup"))
	time.Sleep(20 * time.Millisecond)
	env.Chain.FailReads(nil)
	select {
	case err := <-watched:
		t.Fatalf("watcher ended during the outage: %v", err)
	default:
	}

	closeWithInitialState(t, env, id, payer)
	require.Eventually(t, func() bool { return challenged(env) }, testTimeout, paytest.PollingInterval)
}

func TestWatchRestartsAfterSubscribeError(t *testing.T) {
	env := paytest.NewEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	id, payer := env.OpenChannel(t, 1_000_000)
	data, sigHex := paytest.Send(t, payer, 50_000)
	_, err := env.Service.Pay(ctx, id, payment.ActionView, 1, data, sigHex)
	require.NoError(t, err)

	env.Chain.FailReads(errors.New("node down"))
	n, err := env.Service.ResumeWatching(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	reads := env.Chain.Reads()
	require.Eventually(t, func() bool { return env.Chain.Reads() >= reads+2 }, testTimeout, paytest.PollingInterval)
	env.Chain.FailReads(nil)

	closeWithInitialState(t, env, id, payer)
	require.Eventually(t, func() bool { return challenged(env) }, testTimeout, paytest.PollingInterval)
	row, err := env.Ledger.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, row.Closed)
}
