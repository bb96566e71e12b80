// Copyright 2024 PolyCrypt GmbH
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
	"math/big"

	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/wallet"

	pwallet "perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wire"
)

// sent returns how much party isA has sent in state: its initial balance
// minus its current balance, floored at zero.
func (id *Identity) sent(state wire.ChannelState, isA bool) *big.Int {
	var current *big.Int
	if isA {
		current = state.BalanceA
	} else {
		current = state.BalanceB
	}
	d := new(big.Int).Sub(id.InitBalance(isA), current)
	if d.Sign() < 0 {
		return d.SetInt64(0)
	}
	return d
}

// semiChannelState is the payload party signerIsA signs for state: its own
// body first, the other party's body as counterparty.
func (id *Identity) semiChannelState(state wire.ChannelState, signerIsA bool) wire.SemiChannelState {
	seqno := func(isA bool) uint64 {
		if isA {
			return state.SeqnoA
		}
		return state.SeqnoB
	}
	return wire.SemiChannelState{
		ChannelID: id.ChannelID(),
		Data: wire.SemiChannelBody{
			Seqno: seqno(signerIsA),
			Sent:  id.sent(state, signerIsA),
		},
		Counterparty: &wire.SemiChannelBody{
			Seqno: seqno(!signerIsA),
			Sent:  id.sent(state, !signerIsA),
		},
	}
}

func (id *Identity) stateCell(state wire.ChannelState, signerIsA bool) (*cell.Cell, error) {
	if err := state.Valid(); err != nil {
		return nil, err
	}
	return id.semiChannelState(state, signerIsA).ToCell()
}

func (id *Identity) closeCell(state wire.ChannelState) (*cell.Cell, error) {
	if err := state.Valid(); err != nil {
		return nil, err
	}
	return wire.CooperativeClose{
		ChannelID: id.ChannelID(),
		BalanceA:  state.BalanceA,
		BalanceB:  state.BalanceB,
		SeqnoA:    state.SeqnoA,
		SeqnoB:    state.SeqnoB,
	}.ToCell()
}

// SignState signs state as this party's semi-channel state. It does not
// change any channel state.
func (c *Channel) SignState(state wire.ChannelState) (wallet.Sig, error) {
	payload, err := c.stateCell(state, c.isA)
	if err != nil {
		return nil, err
	}
	return c.account.SignCell(payload)
}

// VerifyState reports whether sig is the counterparty's signature over
// state, rebuilt from the counterparty's point of view.
func (c *Channel) VerifyState(state wire.ChannelState, sig []byte) bool {
	payload, err := c.stateCell(state, !c.isA)
	if err != nil {
		return false
	}
	return c.verifyCounterparty(payload, sig)
}

// verifyCounterparty checks sig over the hash of payload against the other
// party.
func (c *Channel) verifyCounterparty(payload *cell.Cell, sig []byte) bool {
	ok, err := pwallet.Backend.VerifySignature(payload.Hash(), sig, c.Participant(!c.isA))
	if err != nil {
		c.log.Log().Debugf("Rejecting signature: %v", err)
		return false
	}
	return ok
}

// SignClose signs the cooperative close of state.
func (c *Channel) SignClose(state wire.ChannelState) (wallet.Sig, error) {
	payload, err := c.closeCell(state)
	if err != nil {
		return nil, err
	}
	return c.account.SignCell(payload)
}

// VerifyClose reports whether sig is the counterparty's signature over the
// cooperative close of state.
func (c *Channel) VerifyClose(state wire.ChannelState, sig []byte) bool {
	payload, err := c.closeCell(state)
	if err != nil {
		return false
	}
	return c.verifyCounterparty(payload, sig)
}

// SignedSemiChannelState returns this party's signed semi-channel state as
// submitted in uncooperative closes and challenges.
func (c *Channel) SignedSemiChannelState(state wire.ChannelState) (*cell.Cell, error) {
	payload, err := c.stateCell(state, c.isA)
	if err != nil {
		return nil, err
	}
	sig, err := c.account.SignCell(payload)
	if err != nil {
		return nil, err
	}
	return wire.SignedSemiChannelState{
		Signature: sig,
		State:     c.semiChannelState(state, c.isA),
	}.ToCell()
}

// CounterpartySignedState wraps the counterparty's signature over state into
// its signed semi-channel state, as needed for disputes.
func (c *Channel) CounterpartySignedState(state wire.ChannelState, sig []byte) (*cell.Cell, error) {
	if !c.VerifyState(state, sig) {
		return nil, ErrInvalidSignature
	}
	return wire.SignedSemiChannelState{
		Signature: sig,
		State:     c.semiChannelState(state, !c.isA),
	}.ToCell()
}
