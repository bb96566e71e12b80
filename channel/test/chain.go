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

package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"polycry.pt/poly-go/sync"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wire"
)

// ErrRejected is returned when the simulated contract would throw.
var ErrRejected = errors.New("rejected by contract")

// exitCodeNoAccount is the exit code of get-methods on missing accounts.
const exitCodeNoAccount = -13

type contract struct {
	cfg        wire.ChannelConfig
	status     wire.ChannelStatus
	depositA   *big.Int
	depositB   *big.Int
	balanceA   *big.Int
	balanceB   *big.Int
	seqnoA     uint64
	seqnoB     uint64
	quarantine *cell.Cell
}

// Sent is an external message received by the chain.
type Sent struct {
	To   *address.Address
	Body *cell.Cell
}

// Chain simulates payment channel contracts behind the ChainReader and
// Sender interfaces. Internal messages arrive through Transfer, which plays
// the role of the user's wallet.
type Chain struct {
	mu        sync.Mutex
	contracts map[string]*contract
	closed    map[string]wire.ChannelState
	sent      []Sent
	reads     int
	openDelay int
	readErr   error
	sendErr   error
}

var (
	_ channel.ChainReader = (*Chain)(nil)
	_ channel.Sender      = (*Chain)(nil)
)

func NewChain() *Chain {
	return &Chain{
		contracts: make(map[string]*contract),
		closed:    make(map[string]wire.ChannelState),
	}
}

func key(a *address.Address) string {
	return fmt.Sprintf("%d:%x", a.Workchain(), a.Data())
}

// SetOpenDelay makes the next n get_channel_state calls report UNINITED.
func (c *Chain) SetOpenDelay(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openDelay = n
}

// FailReads makes all get-method calls fail with err until it is reset
// with nil.
func (c *Chain) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// FailSends makes SendExternal fail with err until it is reset with nil.
func (c *Chain) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetStatus overrides the status of the contract at addr.
func (c *Chain) SetStatus(addr *address.Address, status wire.ChannelStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.contracts[key(addr)]; ok {
		ct.status = status
	}
}

// Open deploys and initializes the channel of id directly, as if the open
// messages had been processed.
func (c *Chain) Open(id *channel.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := id.Config()
	c.contracts[key(id.Address())] = &contract{
		cfg:      cfg,
		status:   wire.StatusOpen,
		depositA: new(big.Int).Set(cfg.InitBalanceA),
		depositB: new(big.Int).Set(cfg.InitBalanceB),
		balanceA: new(big.Int).Set(cfg.InitBalanceA),
		balanceB: new(big.Int).Set(cfg.InitBalanceB),
	}
}

// Reads returns the number of get-method calls so far.
func (c *Chain) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Sent returns the external messages received so far.
func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Closed returns the state the channel at addr was paid out with.
func (c *Chain) Closed(addr *address.Address) (wire.ChannelState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.closed[key(addr)]
	return s, ok
}

func (c *Chain) RunGetMethod(_ context.Context, addr *address.Address, method string) (wire.GetMethodResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return wire.GetMethodResult{}, c.readErr
	}
	ct, ok := c.contracts[key(addr)]
	if !ok {
		return wire.GetMethodResult{ExitCode: exitCodeNoAccount}, nil
	}
	switch method {
	case wire.MethodGetChannelState:
		status := ct.status
		if c.openDelay > 0 {
			c.openDelay--
			status = wire.StatusUninited
		}
		return wire.GetMethodResult{Stack: StatusStack(status)}, nil
	case wire.MethodGetChannelData:
		return wire.GetMethodResult{Stack: DataStack(ct.data())}, nil
	default:
		return wire.GetMethodResult{ExitCode: 11}, nil
	}
}

func (ct *contract) data() wire.ChannelData {
	closing := wire.ClosingConfig{MisbehaviorFine: new(big.Int)}
	if ct.cfg.Closing != nil {
		closing = *ct.cfg.Closing
	}
	return wire.ChannelData{
		Status:                   ct.status,
		BalanceA:                 ct.balanceA,
		BalanceB:                 ct.balanceB,
		PublicKeyA:               ct.cfg.PublicKeyA,
		PublicKeyB:               ct.cfg.PublicKeyB,
		ChannelID:                ct.cfg.ChannelID,
		QuarantineDuration:       closing.QuarantineDuration,
		MisbehaviorFine:          closing.MisbehaviorFine,
		ConditionalCloseDuration: closing.ConditionalCloseDuration,
		SeqnoA:                   ct.seqnoA,
		SeqnoB:                   ct.seqnoB,
		Quarantine:               ct.quarantine,
		ExcessFee:                ct.cfg.ExcessFee,
		AddressA:                 ct.cfg.AddressA,
		AddressB:                 ct.cfg.AddressB,
	}
}

// Transfer processes internal messages in order, like a wallet sending
// them in one transaction.
func (c *Chain) Transfer(_ context.Context, msgs []channel.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range msgs {
		if err := c.internal(m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

func (c *Chain) internal(m channel.Message) error {
	if m.StateInit != nil {
		if err := c.deploy(m.To, m.StateInit); err != nil {
			return err
		}
	}
	if m.Body == nil {
		return nil
	}
	ct, ok := c.contracts[key(m.To)]
	if !ok {
		return fmt.Errorf("%w: no contract at %s", ErrRejected, m.To)
	}
	op, err := m.Body.BeginParse().LoadUInt(wire.OpBits)
	if err != nil {
		return err
	}
	switch uint32(op) {
	case wire.OpTopUpBalance:
		var topUp wire.TopUpBalance
		if err := topUp.FromCell(m.Body); err != nil {
			return err
		}
		if new(big.Int).Add(topUp.CoinsA, topUp.CoinsB).Cmp(m.Amount) > 0 {
			return fmt.Errorf("%w: top up exceeds message value", ErrRejected)
		}
		ct.depositA.Add(ct.depositA, topUp.CoinsA)
		ct.depositB.Add(ct.depositB, topUp.CoinsB)
		return nil
	case wire.OpInitChannel:
		return ct.init(m.Body)
	default:
		return fmt.Errorf("%w: unexpected internal op %#x", ErrRejected, op)
	}
}

func (c *Chain) deploy(to *address.Address, si *tlb.StateInit) error {
	siCell, err := tlb.ToCell(si)
	if err != nil {
		return err
	}
	if !bytes.Equal(siCell.Hash(), to.Data()) {
		return fmt.Errorf("%w: state init does not match address", ErrRejected)
	}
	if _, ok := c.contracts[key(to)]; ok {
		return nil
	}
	cfg, err := wire.ConfigFromInitialData(si.Data, int8(to.Workchain()))
	if err != nil {
		return err
	}
	c.contracts[key(to)] = &contract{
		cfg:      cfg,
		status:   wire.StatusUninited,
		depositA: new(big.Int),
		depositB: new(big.Int),
		balanceA: new(big.Int),
		balanceB: new(big.Int),
	}
	return nil
}

func (ct *contract) init(body *cell.Cell) error {
	if ct.status != wire.StatusUninited {
		return fmt.Errorf("%w: already initialized", ErrRejected)
	}
	env, err := wire.ParseOneSignature(body)
	if err != nil {
		return err
	}
	if !ct.verify(env.IsA, env.Body, env.Signature) {
		return fmt.Errorf("%w: init signature", ErrRejected)
	}
	var msg wire.InitChannel
	if err := msg.FromCell(env.Body); err != nil {
		return err
	}
	if msg.ChannelID.Cmp(ct.cfg.ChannelID) != 0 {
		return fmt.Errorf("%w: wrong channel id", ErrRejected)
	}
	if msg.BalanceA.Cmp(ct.depositA) > 0 || msg.BalanceB.Cmp(ct.depositB) > 0 {
		return fmt.Errorf("%w: balances exceed deposits", ErrRejected)
	}
	ct.balanceA, ct.balanceB = msg.BalanceA, msg.BalanceB
	ct.status = wire.StatusOpen
	return nil
}

func (ct *contract) verify(isA bool, body *cell.Cell, sig []byte) bool {
	if isA {
		return wallet.VerifyCell(ct.cfg.PublicKeyA, body, sig)
	}
	return wallet.VerifyCell(ct.cfg.PublicKeyB, body, sig)
}

func (c *Chain) SendExternal(_ context.Context, to *address.Address, si *tlb.StateInit, body *cell.Cell) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if si != nil {
		if err := c.deploy(to, si); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, Sent{To: to, Body: body})
	ct, ok := c.contracts[key(to)]
	if !ok {
		return fmt.Errorf("%w: no contract at %s", ErrRejected, to)
	}
	op, err := body.BeginParse().LoadUInt(wire.OpBits)
	if err != nil {
		return err
	}
	switch uint32(op) {
	case wire.OpCooperativeClose:
		return c.cooperativeClose(to, ct, body)
	case wire.OpCooperativeCommit:
		return ct.cooperativeCommit(body)
	case wire.OpStartUncooperativeClose, wire.OpChallengeQuarantinedState:
		return ct.dispute(uint32(op), body)
	case wire.OpSettleConditionals:
		if ct.status != wire.StatusClosureStarted && ct.status != wire.StatusSettlingConditionals {
			return fmt.Errorf("%w: not in quarantine", ErrRejected)
		}
		env, err := wire.ParseOneSignature(body)
		if err != nil {
			return err
		}
		if !ct.verify(env.IsA, env.Body, env.Signature) {
			return fmt.Errorf("%w: settle signature", ErrRejected)
		}
		ct.status = wire.StatusAwaitingFinalization
		return nil
	case wire.OpFinishUncooperativeClose:
		if ct.status < wire.StatusClosureStarted {
			return fmt.Errorf("%w: no uncooperative close in progress", ErrRejected)
		}
		c.payout(to, ct)
		return nil
	default:
		return fmt.Errorf("%w: unknown op %#x", ErrRejected, op)
	}
}

func (c *Chain) cooperativeClose(to *address.Address, ct *contract, body *cell.Cell) error {
	if ct.status != wire.StatusOpen {
		return fmt.Errorf("%w: channel not open", ErrRejected)
	}
	env, err := wire.ParseTwoSignature(body)
	if err != nil {
		return err
	}
	if !ct.verify(true, env.Body, env.SignatureA) || !ct.verify(false, env.Body, env.SignatureB) {
		return fmt.Errorf("%w: close signatures", ErrRejected)
	}
	var msg wire.CooperativeClose
	if err := msg.FromCell(env.Body); err != nil {
		return err
	}
	if msg.ChannelID.Cmp(ct.cfg.ChannelID) != 0 || msg.SeqnoA < ct.seqnoA || msg.SeqnoB < ct.seqnoB {
		return fmt.Errorf("%w: outdated close", ErrRejected)
	}
	total := new(big.Int).Add(ct.balanceA, ct.balanceB)
	if new(big.Int).Add(msg.BalanceA, msg.BalanceB).Cmp(total) > 0 {
		return fmt.Errorf("%w: close exceeds balance", ErrRejected)
	}
	ct.balanceA, ct.balanceB = msg.BalanceA, msg.BalanceB
	ct.seqnoA, ct.seqnoB = msg.SeqnoA, msg.SeqnoB
	c.payout(to, ct)
	return nil
}

func (ct *contract) cooperativeCommit(body *cell.Cell) error {
	if ct.status != wire.StatusOpen {
		return fmt.Errorf("%w: channel not open", ErrRejected)
	}
	env, err := wire.ParseTwoSignature(body)
	if err != nil {
		return err
	}
	if !ct.verify(true, env.Body, env.SignatureA) || !ct.verify(false, env.Body, env.SignatureB) {
		return fmt.Errorf("%w: commit signatures", ErrRejected)
	}
	var msg wire.CooperativeCommit
	if err := msg.FromCell(env.Body); err != nil {
		return err
	}
	if msg.SeqnoA < ct.seqnoA || msg.SeqnoB < ct.seqnoB {
		return fmt.Errorf("%w: outdated commit", ErrRejected)
	}
	ct.seqnoA, ct.seqnoB = msg.SeqnoA, msg.SeqnoB
	return nil
}

func (ct *contract) dispute(op uint32, body *cell.Cell) error {
	want := wire.StatusOpen
	if op == wire.OpChallengeQuarantinedState {
		want = wire.StatusClosureStarted
	}
	if ct.status != want {
		return fmt.Errorf("%w: status %v", ErrRejected, ct.status)
	}
	env, err := wire.ParseOneSignature(body)
	if err != nil {
		return err
	}
	if !ct.verify(env.IsA, env.Body, env.Signature) {
		return fmt.Errorf("%w: dispute signature", ErrRejected)
	}
	var stateA, stateB *cell.Cell
	if op == wire.OpStartUncooperativeClose {
		var msg wire.StartUncooperativeClose
		if err := msg.FromCell(env.Body); err != nil {
			return err
		}
		stateA, stateB = msg.SignedStateA, msg.SignedStateB
	} else {
		var msg wire.ChallengeQuarantinedState
		if err := msg.FromCell(env.Body); err != nil {
			return err
		}
		stateA, stateB = msg.SignedStateA, msg.SignedStateB
	}
	for i, sc := range []*cell.Cell{stateA, stateB} {
		signed, err := wire.SignedSemiChannelStateFromCell(sc)
		if err != nil {
			return err
		}
		payload, err := signed.State.ToCell()
		if err != nil {
			return err
		}
		if !ct.verify(i == 0, payload, signed.Signature) {
			return fmt.Errorf("%w: semi-channel state %d", ErrRejected, i)
		}
	}
	ct.quarantine = env.Body
	ct.status = wire.StatusClosureStarted
	return nil
}

// payout resets the contract the way the real one does after paying out.
func (c *Chain) payout(to *address.Address, ct *contract) {
	c.closed[key(to)] = wire.ChannelState{
		BalanceA: new(big.Int).Set(ct.balanceA),
		BalanceB: new(big.Int).Set(ct.balanceB),
		SeqnoA:   ct.seqnoA,
		SeqnoB:   ct.seqnoB,
	}
	ct.status = wire.StatusUninited
	ct.quarantine = nil
	ct.balanceA, ct.balanceB = new(big.Int), new(big.Int)
	ct.depositA, ct.depositB = new(big.Int), new(big.Int)
}
