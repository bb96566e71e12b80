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
package channel_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/tlb"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-ton-backend/channel"
	chtest "perun.network/perun-ton-backend/channel/test"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wire"
)

const testTimeout = 10 * time.Second

func TestBuildOpenChannelMessages(t *testing.T) {
	rng := pkgtest.Prng(t)
	a, _ := chtest.NewRandomChannels(rng, 0, 0)
	initial := big.NewInt(1_000_000_000)

	msgs, err := channel.BuildOpenChannelMessages(a, initial)
	require.NoError(t, err)
	for _, m := range msgs.All() {
		require.Equal(t, a.Address().Data(), m.To.Data())
		require.False(t, m.Bounce)
	}

	require.NotNil(t, msgs.Deploy.StateInit)
	require.Nil(t, msgs.Deploy.Body)
	require.Zero(t, msgs.Deploy.Amount.Cmp(channel.DeployValue))
	siCell, err := tlb.ToCell(msgs.Deploy.StateInit)
	require.NoError(t, err)
	require.Equal(t, a.Address().Data(), siCell.Hash())

	require.Zero(t, msgs.TopUp.Amount.Cmp(big.NewInt(1_015_000_000)))
	var topUp wire.TopUpBalance
	require.NoError(t, topUp.FromCell(msgs.TopUp.Body))
	require.Zero(t, topUp.CoinsA.Cmp(initial))
	require.Zero(t, topUp.CoinsB.Sign())

	require.Zero(t, msgs.Init.Amount.Cmp(channel.InitValue))
	env, err := wire.ParseOneSignature(msgs.Init.Body)
	require.NoError(t, err)
	require.Equal(t, wire.OpInitChannel, env.Op)
	require.True(t, env.IsA)
	require.True(t, wallet.VerifyCell(a.PublicKey(true), env.Body, env.Signature))
	var init wire.InitChannel
	require.NoError(t, init.FromCell(env.Body))
	require.Zero(t, init.BalanceA.Cmp(initial))
	require.Zero(t, init.BalanceB.Sign())
	require.Zero(t, init.ChannelID.Cmp(a.ChannelID()))

	require.Zero(t, msgs.Channel.InitBalance(true).Cmp(initial))
	require.Zero(t, a.InitBalance(true).Sign())

	internal, err := tlb.ToCell(msgs.Init.Internal())
	require.NoError(t, err)
	require.NotNil(t, internal)
}

func TestBuildOpenChannelMessagesAsB(t *testing.T) {
	rng := pkgtest.Prng(t)
	_, b := chtest.NewRandomChannels(rng, 0, 0)
	msgs, err := channel.BuildOpenChannelMessages(b, big.NewInt(5))
	require.NoError(t, err)

	var topUp wire.TopUpBalance
	require.NoError(t, topUp.FromCell(msgs.TopUp.Body))
	require.Zero(t, topUp.CoinsA.Sign())
	require.Equal(t, int64(5), topUp.CoinsB.Int64())
	env, err := wire.ParseOneSignature(msgs.Init.Body)
	require.NoError(t, err)
	require.False(t, env.IsA)

	_, err = channel.BuildOpenChannelMessages(b, big.NewInt(-1))
	require.Error(t, err)
}

func TestOpenAndPoll(t *testing.T) {
	rng := pkgtest.Prng(t)
	a, _ := chtest.NewRandomChannels(rng, 0, 0)
	chain := chtest.NewChain()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	msgs, err := channel.BuildOpenChannelMessages(a, big.NewInt(1_000_000_000))
	require.NoError(t, err)
	require.NoError(t, chain.Transfer(ctx, msgs.All()))
	chain.SetOpenDelay(3)

	funder := channel.NewFunder(chain).WithPolling(time.Millisecond, 10)
	data, err := funder.PollUntilOpen(ctx, a.Identity)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOpen, data.Status)
	require.Equal(t, int64(1_000_000_000), data.BalanceA.Int64())
	require.Zero(t, data.BalanceB.Sign())
	require.Equal(t, []byte(a.PublicKey(true)), data.PublicKeyA)
	require.Equal(t, []byte(a.PublicKey(false)), data.PublicKeyB)
	require.Zero(t, data.ChannelID.Cmp(a.ChannelID()))
	require.Equal(t, a.Config().AddressB.Data(), data.AddressB.Data())
	// Three delayed status reads, one successful status read and one data read.
	require.Equal(t, 5, chain.Reads())
}

func TestOpenRejectsForgedInit(t *testing.T) {
	rng := pkgtest.Prng(t)
	a, b := chtest.NewRandomChannels(rng, 0, 0)
	chain := chtest.NewChain()

	msgs, err := channel.BuildOpenChannelMessages(a, big.NewInt(100))
	require.NoError(t, err)
	// B's init claims a balance nobody deposited.
	forged, err := channel.BuildOpenChannelMessages(b, big.NewInt(100))
	require.NoError(t, err)
	msgs.Init = forged.Init
	err = chain.Transfer(context.Background(), msgs.All())
	require.Error(t, err)
	require.ErrorIs(t, err, chtest.ErrRejected)
}

func TestPollUntilOpenTimeout(t *testing.T) {
	rng := pkgtest.Prng(t)
	id, _, _ := chtest.NewRandomIdentity(rng)
	chain := chtest.NewChain()

	funder := channel.NewFunder(chain).WithPolling(time.Millisecond, 5)
	_, err := funder.PollUntilOpen(context.Background(), id)
	require.ErrorIs(t, err, channel.ErrOpenTimeout)
	require.Equal(t, 5, chain.Reads())

	readErr := errors.New("node unreachable")
	chain.FailReads(readErr)
	_, err = funder.PollUntilOpen(context.Background(), id)
	require.ErrorIs(t, err, channel.ErrOpenTimeout)
	require.Contains(t, err.Error(), readErr.Error())
}

func TestPollUntilOpenCancel(t *testing.T) {
	rng := pkgtest.Prng(t)
	id, _, _ := chtest.NewRandomIdentity(rng)
	chain := chtest.NewChain()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	funder := channel.NewFunder(chain).WithPolling(time.Millisecond, 1_000_000)
	_, err := funder.PollUntilOpen(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
