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
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/wire"
)

var (
	ErrChannelAlreadyClosed = errors.New("channel is already closed")
	ErrChannelNotOpen       = errors.New("channel is not open")
	ErrUnexpectedStatus     = errors.New("unexpected channel status")
)

// BuildCooperativeClose builds the cooperative_close message for final. The
// counterparty's close signature is checked before this party signs.
func BuildCooperativeClose(ch *Channel, final wire.ChannelState, counterpartySig []byte) (*cell.Cell, error) {
	if !ch.VerifyClose(final, counterpartySig) {
		return nil, fmt.Errorf("%w: cooperative close", ErrInvalidSignature)
	}
	body, err := ch.closeCell(final)
	if err != nil {
		return nil, err
	}
	return ch.signTwo(wire.OpCooperativeClose, body, counterpartySig)
}

// BuildCooperativeCommit builds the cooperative_commit message which
// commits the seqnos of state on-chain without closing the channel.
func BuildCooperativeCommit(ch *Channel, state wire.ChannelState, counterpartySig []byte) (*cell.Cell, error) {
	body, err := wire.CooperativeCommit{
		ChannelID: ch.ChannelID(),
		SeqnoA:    state.SeqnoA,
		SeqnoB:    state.SeqnoB,
	}.ToCell()
	if err != nil {
		return nil, err
	}
	if !ch.verifyCounterparty(body, counterpartySig) {
		return nil, fmt.Errorf("%w: cooperative commit", ErrInvalidSignature)
	}
	return ch.signTwo(wire.OpCooperativeCommit, body, counterpartySig)
}

// SignCommit signs the cooperative commit of state.
func (c *Channel) SignCommit(state wire.ChannelState) ([]byte, error) {
	body, err := wire.CooperativeCommit{
		ChannelID: c.ChannelID(),
		SeqnoA:    state.SeqnoA,
		SeqnoB:    state.SeqnoB,
	}.ToCell()
	if err != nil {
		return nil, err
	}
	return c.account.SignCell(body)
}

// BuildStartUncooperativeClose builds the start_uncooperative_close message
// from this party's state and the last signed state of the counterparty.
func BuildStartUncooperativeClose(ch *Channel, state wire.ChannelState, counterpartySigned *cell.Cell) (*cell.Cell, error) {
	a, b, err := ch.disputeStates(state, counterpartySigned)
	if err != nil {
		return nil, err
	}
	body, err := wire.StartUncooperativeClose{ChannelID: ch.ChannelID(), SignedStateA: a, SignedStateB: b}.ToCell()
	if err != nil {
		return nil, err
	}
	return ch.signOne(wire.OpStartUncooperativeClose, body)
}

// BuildChallengeQuarantinedState builds the challenge_quarantined_state
// message, replacing the quarantined states by newer ones.
func BuildChallengeQuarantinedState(ch *Channel, state wire.ChannelState, counterpartySigned *cell.Cell) (*cell.Cell, error) {
	a, b, err := ch.disputeStates(state, counterpartySigned)
	if err != nil {
		return nil, err
	}
	body, err := wire.ChallengeQuarantinedState{ChannelID: ch.ChannelID(), SignedStateA: a, SignedStateB: b}.ToCell()
	if err != nil {
		return nil, err
	}
	return ch.signOne(wire.OpChallengeQuarantinedState, body)
}

// BuildSettleConditionals builds the settle_conditionals message. A nil map
// settles nothing.
func BuildSettleConditionals(ch *Channel, conditionals *cell.Cell) (*cell.Cell, error) {
	body, err := wire.SettleConditionals{ChannelID: ch.ChannelID(), Conditionals: conditionals}.ToCell()
	if err != nil {
		return nil, err
	}
	return ch.signOne(wire.OpSettleConditionals, body)
}

// BuildFinishUncooperativeClose builds the unsigned finish_uncooperative_close
// message.
func BuildFinishUncooperativeClose() (*cell.Cell, error) {
	return wire.FinishUncooperativeClose{}.ToCell()
}

// disputeStates returns the signed semi-channel states of A and B. The
// counterparty's state must carry its valid signature for this channel.
func (c *Channel) disputeStates(state wire.ChannelState, counterpartySigned *cell.Cell) (*cell.Cell, *cell.Cell, error) {
	if counterpartySigned == nil {
		return nil, nil, fmt.Errorf("%w: missing counterparty state", ErrInvalidSignature)
	}
	signed, err := wire.SignedSemiChannelStateFromCell(counterpartySigned)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding counterparty state: %w", err)
	}
	if signed.State.ChannelID == nil || signed.State.ChannelID.Cmp(c.config.ChannelID) != 0 {
		return nil, nil, fmt.Errorf("%w: counterparty state of another channel", ErrInvalidSignature)
	}
	payload, err := signed.State.ToCell()
	if err != nil {
		return nil, nil, err
	}
	if !c.verifyCounterparty(payload, signed.Signature) {
		return nil, nil, fmt.Errorf("%w: counterparty state", ErrInvalidSignature)
	}
	own, err := c.SignedSemiChannelState(state)
	if err != nil {
		return nil, nil, err
	}
	if c.isA {
		return own, counterpartySigned, nil
	}
	return counterpartySigned, own, nil
}

// signTwo signs body and places both signatures in role order.
func (c *Channel) signTwo(op uint32, body *cell.Cell, counterpartySig []byte) (*cell.Cell, error) {
	sig, err := c.account.SignCell(body)
	if err != nil {
		return nil, err
	}
	if c.isA {
		return wire.TwoSignature(op, sig, counterpartySig, body)
	}
	return wire.TwoSignature(op, counterpartySig, sig, body)
}

// Adjudicator submits close and dispute messages of one channel.
type Adjudicator struct {
	ch     *Channel
	reader ChainReader
	sender Sender
	log    log.Embedding
}

// NewAdjudicator returns a new Adjudicator. reader is used to check the
// contract status before submitting.
func NewAdjudicator(ch *Channel, reader ChainReader, sender Sender) *Adjudicator {
	return &Adjudicator{
		ch:     ch,
		reader: reader,
		sender: sender,
		log:    ch.log,
	}
}

// CooperativeClose submits the cooperative close of final.
func (a *Adjudicator) CooperativeClose(ctx context.Context, final wire.ChannelState, counterpartySig []byte) error {
	if err := a.requireStatus(ctx, wire.StatusOpen); err != nil {
		return err
	}
	msg, err := BuildCooperativeClose(a.ch, final, counterpartySig)
	if err != nil {
		return err
	}
	a.log.Log().Infof("Closing channel cooperatively at %v", final)
	return a.submit(ctx, msg)
}

// CooperativeCommit submits the seqnos of state.
func (a *Adjudicator) CooperativeCommit(ctx context.Context, state wire.ChannelState, counterpartySig []byte) error {
	if err := a.requireStatus(ctx, wire.StatusOpen); err != nil {
		return err
	}
	msg, err := BuildCooperativeCommit(a.ch, state, counterpartySig)
	if err != nil {
		return err
	}
	return a.submit(ctx, msg)
}

// StartUncooperativeClose starts the quarantine with state and the last
// signed state of the counterparty.
func (a *Adjudicator) StartUncooperativeClose(ctx context.Context, state wire.ChannelState, counterpartySigned *cell.Cell) error {
	if err := a.requireStatus(ctx, wire.StatusOpen); err != nil {
		return err
	}
	msg, err := BuildStartUncooperativeClose(a.ch, state, counterpartySigned)
	if err != nil {
		return err
	}
	a.log.Log().Warnf("Starting uncooperative close at %v", state)
	return a.submit(ctx, msg)
}

// Challenge replaces the quarantined states by newer ones.
func (a *Adjudicator) Challenge(ctx context.Context, state wire.ChannelState, counterpartySigned *cell.Cell) error {
	if err := a.requireStatus(ctx, wire.StatusClosureStarted); err != nil {
		return err
	}
	msg, err := BuildChallengeQuarantinedState(a.ch, state, counterpartySigned)
	if err != nil {
		return err
	}
	return a.submit(ctx, msg)
}

// SettleConditionals settles the given conditionals.
func (a *Adjudicator) SettleConditionals(ctx context.Context, conditionals *cell.Cell) error {
	if err := a.requireStatus(ctx, wire.StatusClosureStarted, wire.StatusSettlingConditionals); err != nil {
		return err
	}
	msg, err := BuildSettleConditionals(a.ch, conditionals)
	if err != nil {
		return err
	}
	return a.submit(ctx, msg)
}

// FinishUncooperativeClose pays out the channel once all timeouts passed.
func (a *Adjudicator) FinishUncooperativeClose(ctx context.Context) error {
	if err := a.requireStatus(ctx, wire.StatusClosureStarted, wire.StatusSettlingConditionals,
		wire.StatusAwaitingFinalization); err != nil {
		return err
	}
	msg, err := BuildFinishUncooperativeClose()
	if err != nil {
		return err
	}
	return a.submit(ctx, msg)
}

// Subscribe subscribes to status changes of the channel.
func (a *Adjudicator) Subscribe(ctx context.Context) (*AdjEventSub, error) {
	return NewAdjudicatorSub(ctx, a.ch.Identity, a.reader)
}

func (a *Adjudicator) requireStatus(ctx context.Context, allowed ...wire.ChannelStatus) error {
	status, err := a.ch.GetChannelState(ctx, a.reader)
	if err != nil {
		return err
	}
	if slices.Contains(allowed, status) {
		return nil
	}
	if status == wire.StatusUninited {
		return ErrChannelAlreadyClosed
	}
	if slices.Contains(allowed, wire.StatusOpen) {
		return fmt.Errorf("%w: %v", ErrChannelNotOpen, status)
	}
	return fmt.Errorf("%w: %v", ErrUnexpectedStatus, status)
}

func (a *Adjudicator) submit(ctx context.Context, msg *cell.Cell) error {
	if err := a.sender.SendExternal(ctx, a.ch.Address(), nil, msg); err != nil {
		return fmt.Errorf("sending to %s: %w", a.ch.Address(), err)
	}
	return nil
}
