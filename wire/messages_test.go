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

package wire_test

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-ton-backend/wire"
)

func randBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func randAddress(rng *rand.Rand) *address.Address {
	return address.NewAddress(0, 0, randBytes(rng, 32))
}

func randChannelID(rng *rand.Rand) *big.Int {
	return new(big.Int).SetBytes(randBytes(rng, 16))
}

func TestTopUpBalanceLayout(t *testing.T) {
	c, err := wire.TopUpBalance{CoinsA: big.NewInt(1_000_000_000), CoinsB: big.NewInt(0)}.ToCell()
	require.NoError(t, err)

	s := c.BeginParse()
	op, err := s.LoadUInt(32)
	require.NoError(t, err)
	require.Equal(t, uint64(1741148801), op)
	a, err := s.LoadBigCoins()
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000_000), a.Int64())
	b, err := s.LoadBigCoins()
	require.NoError(t, err)
	require.Zero(t, b.Sign())
	require.Zero(t, s.BitsLeft())
}

func TestCooperativeClose(t *testing.T) {
	rng := pkgtest.Prng(t)
	msg := wire.CooperativeClose{
		ChannelID: randChannelID(rng),
		BalanceA:  big.NewInt(999_999_850),
		BalanceB:  big.NewInt(150),
		SeqnoA:    1,
		SeqnoB:    0,
	}
	c, err := msg.ToCell()
	require.NoError(t, err)

	// tag + id + 2 coins (4+32 bits each) + 2 seqnos
	require.Equal(t, uint(32+128+36+12+64+64), c.BeginParse().BitsLeft())

	var got wire.CooperativeClose
	require.NoError(t, got.FromCell(c))
	require.Zero(t, msg.ChannelID.Cmp(got.ChannelID))
	require.Zero(t, msg.BalanceA.Cmp(got.BalanceA))
	require.Zero(t, msg.BalanceB.Cmp(got.BalanceB))
	require.Equal(t, msg.SeqnoA, got.SeqnoA)
	require.Equal(t, msg.SeqnoB, got.SeqnoB)

	var wrong wire.CooperativeCommit
	require.ErrorIs(t, wrong.FromCell(c), wire.ErrUnexpectedTag)
}

func TestSemiChannelState(t *testing.T) {
	rng := pkgtest.Prng(t)
	state := wire.SemiChannelState{
		ChannelID:    randChannelID(rng),
		Data:         wire.SemiChannelBody{Seqno: 7, Sent: big.NewInt(350)},
		Counterparty: &wire.SemiChannelBody{Seqno: 2, Sent: big.NewInt(0)},
	}
	c, err := state.ToCell()
	require.NoError(t, err)
	require.Equal(t, 1, c.BeginParse().RefsNum())

	got, err := wire.SemiChannelStateFromCell(c)
	require.NoError(t, err)
	require.Zero(t, state.ChannelID.Cmp(got.ChannelID))
	require.Equal(t, uint64(7), got.Data.Seqno)
	require.Zero(t, got.Data.Sent.Cmp(big.NewInt(350)))
	require.NotNil(t, got.Counterparty)
	require.Equal(t, uint64(2), got.Counterparty.Seqno)

	again, err := got.ToCell()
	require.NoError(t, err)
	require.Equal(t, c.Hash(), again.Hash())

	state.Counterparty = nil
	c, err = state.ToCell()
	require.NoError(t, err)
	require.Zero(t, c.BeginParse().RefsNum())
	got, err = wire.SemiChannelStateFromCell(c)
	require.NoError(t, err)
	require.Nil(t, got.Counterparty)
}

func TestSignedSemiChannelState(t *testing.T) {
	rng := pkgtest.Prng(t)
	signed := wire.SignedSemiChannelState{
		Signature: randBytes(rng, wire.SignatureLength),
		State: wire.SemiChannelState{
			ChannelID: randChannelID(rng),
			Data:      wire.SemiChannelBody{Seqno: 1, Sent: big.NewInt(10)},
		},
	}
	c, err := signed.ToCell()
	require.NoError(t, err)
	got, err := wire.SignedSemiChannelStateFromCell(c)
	require.NoError(t, err)
	require.Equal(t, signed.Signature, got.Signature)

	stateCell, err := signed.State.ToCell()
	require.NoError(t, err)
	gotState, err := got.State.ToCell()
	require.NoError(t, err)
	require.Equal(t, stateCell.Hash(), gotState.Hash())

	signed.Signature = signed.Signature[:63]
	_, err = signed.ToCell()
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func TestDisputeMessages(t *testing.T) {
	rng := pkgtest.Prng(t)
	id := randChannelID(rng)
	a := cell.BeginCell().MustStoreUInt(1, 8).EndCell()
	b := cell.BeginCell().MustStoreUInt(2, 8).EndCell()

	c, err := wire.StartUncooperativeClose{ChannelID: id, SignedStateA: a, SignedStateB: b}.ToCell()
	require.NoError(t, err)
	var start wire.StartUncooperativeClose
	require.NoError(t, start.FromCell(c))
	require.Equal(t, a.Hash(), start.SignedStateA.Hash())
	require.Equal(t, b.Hash(), start.SignedStateB.Hash())

	c, err = wire.ChallengeQuarantinedState{ChannelID: id, SignedStateA: a, SignedStateB: b}.ToCell()
	require.NoError(t, err)
	var challenge wire.ChallengeQuarantinedState
	require.NoError(t, challenge.FromCell(c))
	require.ErrorIs(t, start.FromCell(c), wire.ErrUnexpectedTag)

	_, err = wire.StartUncooperativeClose{ChannelID: id, SignedStateA: a}.ToCell()
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func TestSettleConditionals(t *testing.T) {
	rng := pkgtest.Prng(t)
	id := randChannelID(rng)
	c, err := wire.SettleConditionals{ChannelID: id}.ToCell()
	require.NoError(t, err)
	require.Equal(t, uint(32+128+1), c.BeginParse().BitsLeft())

	var got wire.SettleConditionals
	require.NoError(t, got.FromCell(c))
	require.Nil(t, got.Conditionals)
	require.Zero(t, id.Cmp(got.ChannelID))
}

func TestSignatureEnvelopes(t *testing.T) {
	rng := pkgtest.Prng(t)
	body, err := wire.InitChannel{
		ChannelID: randChannelID(rng),
		BalanceA:  big.NewInt(5),
		BalanceB:  big.NewInt(0),
	}.ToCell()
	require.NoError(t, err)
	sig := randBytes(rng, wire.SignatureLength)

	one, err := wire.OneSignature(wire.OpInitChannel, true, sig, body)
	require.NoError(t, err)
	p1, err := wire.ParseOneSignature(one)
	require.NoError(t, err)
	require.Equal(t, wire.OpInitChannel, p1.Op)
	require.True(t, p1.IsA)
	require.Equal(t, sig, p1.Signature)
	require.Equal(t, body.Hash(), p1.Body.Hash())

	zero := make([]byte, wire.SignatureLength)
	two, err := wire.TwoSignature(wire.OpCooperativeClose, sig, zero, body)
	require.NoError(t, err)
	require.Equal(t, 2, two.BeginParse().RefsNum())
	p2, err := wire.ParseTwoSignature(two)
	require.NoError(t, err)
	require.Equal(t, wire.OpCooperativeClose, p2.Op)
	require.Equal(t, sig, p2.SignatureA)
	require.Equal(t, zero, p2.SignatureB)
	require.Equal(t, body.Hash(), p2.Body.Hash())

	_, err = wire.OneSignature(wire.OpInitChannel, true, sig[:10], body)
	require.ErrorIs(t, err, wire.ErrEncoding)
	_, err = wire.TwoSignature(wire.OpCooperativeClose, sig, nil, body)
	require.ErrorIs(t, err, wire.ErrEncoding)
}

func TestTwoSignatureCapacity(t *testing.T) {
	refs := cell.BeginCell()
	for i := 0; i < 3; i++ {
		refs.MustStoreRef(cell.BeginCell().EndCell())
	}
	sig := make([]byte, wire.SignatureLength)
	_, err := wire.TwoSignature(wire.OpCooperativeCommit, sig, sig, refs.EndCell())
	require.ErrorIs(t, err, wire.ErrCapacityExceeded)
}
