package test

import (
	"math/big"
	"math/rand"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wallet"
	wtest "perun.network/perun-ton-backend/wallet/test"
)

// NewRandomChannelID returns a random 128 bit channel id.
func NewRandomChannelID(rng *rand.Rand) *big.Int {
	b := make([]byte, channel.ChannelIDBits/8)
	rng.Read(b)
	return new(big.Int).SetBytes(b)
}

// NewRandomIdentity returns the identity of a channel between two random
// accounts, A being the client.
func NewRandomIdentity(rng *rand.Rand) (*channel.Identity, *wallet.Account, *wallet.Account) {
	accA, accB := wtest.NewRandomAccount(rng), wtest.NewRandomAccount(rng)
	id, err := channel.CreateChannelIdentity(wtest.NewRandomAddress(rng), accA.PublicKey(),
		accB.PublicKey(), wtest.NewRandomAddress(rng), NewRandomChannelID(rng))
	if err != nil {
		panic(err)
	}
	return id, accA, accB
}

// NewRandomChannels returns both parties' views of a random channel with the
// given initial balances.
func NewRandomChannels(rng *rand.Rand, initA, initB int64) (a, b *channel.Channel) {
	id, accA, accB := NewRandomIdentity(rng)
	id, err := id.WithInitBalances(big.NewInt(initA), big.NewInt(initB))
	if err != nil {
		panic(err)
	}
	if a, err = channel.NewChannel(id, accA, true); err != nil {
		panic(err)
	}
	if b, err = channel.NewChannel(id, accB, false); err != nil {
		panic(err)
	}
	return a, b
}
