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

package ledger_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-ton-backend/channel"
	chtest "perun.network/perun-ton-backend/channel/test"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/wallet"
	wtest "perun.network/perun-ton-backend/wallet/test"
	"perun.network/perun-ton-backend/wire"
)

type fixture struct {
	ledger  *ledger.Ledger
	service *wallet.Account
	client  *wallet.Account
	id      *channel.Identity
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := ledger.OpenDB(ledger.DriverSQLite, dsn)
	require.NoError(t, err)

	rng := pkgtest.Prng(t)
	service, client := wtest.NewRandomAccount(rng), wtest.NewRandomAccount(rng)
	id, err := channel.CreateChannelIdentity(wtest.NewRandomAddress(rng), client.PublicKey(), service.PublicKey(),
		wtest.NewRandomAddress(rng), chtest.NewRandomChannelID(rng))
	require.NoError(t, err)
	return fixture{ledger: ledger.New(db, service), service: service, client: client, id: id}
}

func (f fixture) openData(balanceA, balanceB int64) wire.ChannelData {
	return wire.ChannelData{
		Status:     wire.StatusOpen,
		BalanceA:   big.NewInt(balanceA),
		BalanceB:   big.NewInt(balanceB),
		PublicKeyA: f.id.PublicKey(true),
		PublicKeyB: f.id.PublicKey(false),
		ChannelID:  f.id.ChannelID(),
	}
}

func (f fixture) channelID() string {
	return ledger.ChannelIDString(f.id.ChannelID())
}

// open creates and initializes the channel and returns the client's view.
func (f fixture) open(t *testing.T, balanceA, balanceB int64) *channel.Channel {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.Create(ctx, f.id)
	require.NoError(t, err)
	_, err = f.ledger.Initialize(ctx, f.channelID(), f.openData(balanceA, balanceB))
	require.NoError(t, err)

	id, err := f.id.WithInitBalances(big.NewInt(balanceA), big.NewInt(balanceB))
	require.NoError(t, err)
	ch, err := channel.NewChannel(id, f.client, true)
	require.NoError(t, err)
	return ch
}

func signed(t *testing.T, ch *channel.Channel, s wire.ChannelState) ([]byte, string) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	sig, err := ch.SignState(s)
	require.NoError(t, err)
	return data, hex.EncodeToString(sig)
}

func rowState(t *testing.T, row *ledger.Row) wire.ChannelState {
	t.Helper()
	s, err := row.State()
	require.NoError(t, err)
	return s
}

func TestPaymentAndReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.open(t, 1_000_000_000, 0)

	const pricePerView, views = 50, 3
	candidate := wire.ChannelState{BalanceA: big.NewInt(999_999_850), BalanceB: big.NewInt(150), SeqnoA: 1, SeqnoB: 0}
	data, sig := signed(t, client, candidate)

	row, err := f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(pricePerView*views), ledger.ClientPays)
	require.NoError(t, err)
	require.True(t, rowState(t, row).Equal(candidate))
	require.Equal(t, "999999850", row.ClientCurrentBalance)
	require.Equal(t, "150", row.ServiceCurrentBalance)
	require.Equal(t, uint64(1), row.ClientSeqNo)
	require.Zero(t, row.ServiceSeqNo)

	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(pricePerView*views), ledger.ClientPays)
	require.ErrorIs(t, err, ledger.ErrInsufficientPayment)

	stored, err := f.ledger.Get(ctx, f.channelID())
	require.NoError(t, err)
	require.True(t, rowState(t, stored).Equal(candidate))
	require.Equal(t, "1000000000", stored.ClientInitialBalance)
}

func TestUnderpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.open(t, 1000, 0)
	initial := client.InitialState()

	short, err := channel.Transfer(initial, true, big.NewInt(99))
	require.NoError(t, err)
	data, sig := signed(t, client, short)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, ledger.ErrInsufficientPayment)

	paid, err := channel.Transfer(initial, true, big.NewInt(500))
	require.NoError(t, err)
	data, sig = signed(t, client, paid)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(500), ledger.ClientPays)
	require.NoError(t, err)

	// The service refunds 20 but the client only credits itself 10.
	refund, err := channel.Transfer(paid, false, big.NewInt(10))
	require.NoError(t, err)
	data, sig = signed(t, client, refund)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(20), ledger.ServicePays)
	require.ErrorIs(t, err, ledger.ErrInsufficientPayment)

	refund, err = channel.Transfer(paid, false, big.NewInt(20))
	require.NoError(t, err)
	data, sig = signed(t, client, refund)
	row, err := f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(20), ledger.ServicePays)
	require.NoError(t, err)
	require.Equal(t, "480", row.ServiceCurrentBalance)
	require.Equal(t, uint64(1), row.ServiceSeqNo)
}

func TestRejectionsLeaveRowUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.open(t, 1000, 0)
	initial := client.InitialState()
	next, err := channel.Transfer(initial, true, big.NewInt(100))
	require.NoError(t, err)
	data, sig := signed(t, client, next)

	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, "zz", big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, channel.ErrInvalidSignature)

	row, err := f.ledger.Get(ctx, f.channelID())
	require.NoError(t, err)
	serviceCh, err := f.ledger.Channel(row)
	require.NoError(t, err)
	serviceSig, err := serviceCh.SignState(next)
	require.NoError(t, err)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, hex.EncodeToString(serviceSig), big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, channel.ErrInvalidSignature)

	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), []byte(`{"balanceA":"x"}`), sig, big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, wire.ErrEncoding)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), []byte(`not json`), sig, big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, wire.ErrEncoding)

	_, err = f.ledger.ValidateAndCommit(ctx, "ff", data, sig, big.NewInt(100), ledger.ClientPays)
	require.ErrorIs(t, err, ledger.ErrChannelNotFound)

	row, err = f.ledger.Get(ctx, f.channelID())
	require.NoError(t, err)
	require.True(t, rowState(t, row).Equal(initial))
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row, err := f.ledger.Create(ctx, f.id)
	require.NoError(t, err)
	require.False(t, row.Initialized)
	require.Equal(t, "0", row.ClientCurrentBalance)
	require.Equal(t, hex.EncodeToString(f.client.PublicKey()), row.ClientPublicKey)

	_, err = f.ledger.Create(ctx, f.id)
	require.ErrorIs(t, err, ledger.ErrChannelExists)

	ident, err := row.Identity()
	require.NoError(t, err)
	require.Equal(t, f.id.Address().Data(), ident.Address().Data())

	data, sig := signed(t, mustChannel(t, f.id, f.client), f.id.InitialState())
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(0), ledger.ClientPays)
	require.ErrorIs(t, err, ledger.ErrChannelNotInitialized)

	notOpen := f.openData(1000, 0)
	notOpen.Status = wire.StatusClosureStarted
	_, err = f.ledger.Initialize(ctx, f.channelID(), notOpen)
	require.ErrorIs(t, err, channel.ErrChannelNotOpen)

	wrongKey := f.openData(1000, 0)
	wrongKey.PublicKeyA = f.id.PublicKey(false)
	_, err = f.ledger.Initialize(ctx, f.channelID(), wrongKey)
	require.ErrorIs(t, err, ledger.ErrConfigMismatch)

	wrongID := f.openData(1000, 0)
	wrongID.ChannelID = new(big.Int).Add(f.id.ChannelID(), big.NewInt(1))
	_, err = f.ledger.Initialize(ctx, f.channelID(), wrongID)
	require.ErrorIs(t, err, ledger.ErrConfigMismatch)

	row, err = f.ledger.Initialize(ctx, f.channelID(), f.openData(1000, 5))
	require.NoError(t, err)
	require.True(t, row.Initialized)
	require.Equal(t, "1000", row.ClientInitialBalance)
	require.Equal(t, "5", row.ServiceInitialBalance)

	// A second initialization keeps the first one.
	row, err = f.ledger.Initialize(ctx, f.channelID(), f.openData(7, 7))
	require.NoError(t, err)
	require.Equal(t, "1000", row.ClientCurrentBalance)

	row, err = f.ledger.MarkClosed(ctx, f.channelID())
	require.NoError(t, err)
	require.True(t, row.Closed)
	_, err = f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(0), ledger.ClientPays)
	require.ErrorIs(t, err, ledger.ErrChannelClosed)
	_, err = f.ledger.Initialize(ctx, f.channelID(), f.openData(1000, 5))
	require.ErrorIs(t, err, ledger.ErrChannelClosed)

	row, err = f.ledger.Get(ctx, f.channelID())
	require.NoError(t, err)
	require.True(t, row.Closed)
}

func TestInitializedChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.Create(ctx, f.id)
	require.NoError(t, err)
	ids, err := f.ledger.InitializedChannels(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = f.ledger.Initialize(ctx, f.channelID(), f.openData(1000, 0))
	require.NoError(t, err)
	_, err = f.ledger.MarkClosed(ctx, f.channelID())
	require.NoError(t, err)
	ids, err = f.ledger.InitializedChannels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{f.channelID()}, ids)
}

func TestCreateRejectsForeignServiceKey(t *testing.T) {
	f := newFixture(t)
	rng := pkgtest.Prng(t)
	other := wtest.NewRandomAccount(rng)
	id, err := channel.CreateChannelIdentity(wtest.NewRandomAddress(rng), f.client.PublicKey(), other.PublicKey(),
		wtest.NewRandomAddress(rng), big.NewInt(1))
	require.NoError(t, err)
	_, err = f.ledger.Create(context.Background(), id)
	require.ErrorIs(t, err, channel.ErrKeyMismatch)
}

func TestConcurrentSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.open(t, 1000, 0)
	next, err := channel.Transfer(client.InitialState(), true, big.NewInt(100))
	require.NoError(t, err)
	data, sig := signed(t, client, next)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		errs     []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ValidateAndCommit(ctx, f.channelID(), data, sig, big.NewInt(100), ledger.ClientPays)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	require.Zero(t, f.ledger.HeldLocks())

	require.Equal(t, 1, accepted)
	for _, err := range errs {
		require.ErrorIs(t, err, ledger.ErrInsufficientPayment)
	}
	row, err := f.ledger.Get(ctx, f.channelID())
	require.NoError(t, err)
	require.Equal(t, "100", row.ServiceCurrentBalance)
}

func TestChannelLocksAreReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, 1000, 0)

	unlock, err := f.ledger.Lock(ctx, f.channelID())
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = f.ledger.Lock(waitCtx, f.channelID())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, f.ledger.HeldLocks())
	unlock()
	require.Zero(t, f.ledger.HeldLocks())

	_, err = f.ledger.MarkClosed(ctx, f.channelID())
	require.NoError(t, err)
	require.Zero(t, f.ledger.HeldLocks())
	_, err = f.ledger.MarkClosed(ctx, f.channelID())
	require.NoError(t, err)
	require.Zero(t, f.ledger.HeldLocks())
}

func TestParseChannelID(t *testing.T) {
	id, err := ledger.ParseChannelID("ff")
	require.NoError(t, err)
	require.Equal(t, int64(255), id.Int64())
	require.Equal(t, "ff", ledger.ChannelIDString(id))

	_, err = ledger.ParseChannelID("1" + fmt.Sprintf("%032x", 0))
	require.ErrorIs(t, err, wire.ErrEncoding)
	_, err = ledger.ParseChannelID("-1")
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func mustChannel(t *testing.T, id *channel.Identity, acc *wallet.Account) *channel.Channel {
	t.Helper()
	ch, err := channel.NewChannel(id, acc, true)
	require.NoError(t, err)
	return ch
}
