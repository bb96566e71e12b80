package test

import (
	"testing"

	pkgtest "polycry.pt/poly-go/test"

	"perun.network/perun-ton-backend/channel"
)

// Setup is an opened channel between A and B on a simulated chain.
type Setup struct {
	Chain *Chain
	A     *channel.Channel
	B     *channel.Channel
}

// NewSetup opens a random channel with the given initial balances.
func NewSetup(t *testing.T, initA, initB int64) Setup {
	t.Helper()
	rng := pkgtest.Prng(t)
	a, b := NewRandomChannels(rng, initA, initB)
	chain := NewChain()
	chain.Open(a.Identity)
	return Setup{Chain: chain, A: a, B: b}
}
