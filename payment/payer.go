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

package payment

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wire"
)

const DefaultSignTimeout = 2 * time.Minute

var (
	ErrSignTimeout      = errors.New("wallet did not sign in time")
	ErrUnfavorableClose = errors.New("close state pays the client less than the local state")
)

// Transferer is the client's wallet. It sends the given internal messages
// in one transaction once the user approved them.
type Transferer interface {
	Transfer(ctx context.Context, msgs []channel.Message) error
}

type PayerConfig struct {
	PollingInterval    time.Duration
	MaxPollingAttempts int
	// SignTimeout bounds the wallet transfer of the open messages.
	SignTimeout time.Duration
}

// Payer is the client side of a channel with the service. The client is
// party A. It keeps the last state it signed.
type Payer struct {
	mu     sync.Mutex
	ch     *channel.Channel
	state  wire.ChannelState
	reader channel.ChainReader
	sender channel.Sender
	cfg    PayerConfig
	log    log.Embedding
}

// NewPayer returns the payer of the channel channelID the service assigned
// to the client.
func NewPayer(acc *wallet.Account, clientAddress *address.Address, servicePublicKey ed25519.PublicKey,
	serviceAddress *address.Address, channelID *big.Int, reader channel.ChainReader, sender channel.Sender,
	cfg PayerConfig,
) (*Payer, error) {
	id, err := channel.CreateChannelIdentity(clientAddress, acc.PublicKey(), servicePublicKey, serviceAddress, channelID)
	if err != nil {
		return nil, err
	}
	ch, err := channel.NewChannel(id, acc, true)
	if err != nil {
		return nil, err
	}
	return newPayer(ch, ch.InitialState(), reader, sender, cfg), nil
}

// ResumePayer restores a payer from a snapshot.
func ResumePayer(snap wire.Snapshot, w *wallet.EphemeralWallet, reader channel.ChainReader, sender channel.Sender,
	cfg PayerConfig) (*Payer, error) {
	if !snap.IsA {
		return nil, fmt.Errorf("%w: snapshot is not of the client", channel.ErrKeyMismatch)
	}
	acc, err := w.Unlock(snap.Config.PublicKeyA)
	if err != nil {
		return nil, err
	}
	ch, state, err := channel.ChannelFromSnapshot(snap, acc)
	if err != nil {
		return nil, err
	}
	return newPayer(ch, state, reader, sender, cfg), nil
}

func newPayer(ch *channel.Channel, state wire.ChannelState, reader channel.ChainReader, sender channel.Sender,
	cfg PayerConfig) *Payer {
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = DefaultSignTimeout
	}
	return &Payer{
		ch:     ch,
		state:  state,
		reader: reader,
		sender: sender,
		cfg:    cfg,
		log:    log.MakeEmbedding(log.WithField("payer", ch.Address().String())),
	}
}

// Channel returns the client's view of the channel.
func (p *Payer) Channel() *channel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch
}

// State returns the last state the client signed.
func (p *Payer) State() wire.ChannelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

func (p *Payer) Snapshot() wire.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Snapshot(p.state)
}

// OpenMessages returns the messages that open the channel with
// initialBalance deposited by the client.
func (p *Payer) OpenMessages(initialBalance *big.Int) (channel.OpenMessages, error) {
	return channel.BuildOpenChannelMessages(p.Channel(), initialBalance)
}

// Open has the wallet send the open messages and waits until the channel
// is open. The wallet gets SignTimeout to send them.
func (p *Payer) Open(ctx context.Context, w Transferer, initialBalance *big.Int) (wire.ChannelData, error) {
	msgs, err := p.OpenMessages(initialBalance)
	if err != nil {
		return wire.ChannelData{}, err
	}

	tctx, cancel := context.WithTimeout(ctx, p.cfg.SignTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Transfer(tctx, msgs.All()) }()
	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return wire.ChannelData{}, ErrSignTimeout
			}
			return wire.ChannelData{}, fmt.Errorf("sending open messages: %w", err)
		}
	case <-tctx.Done():
		if ctx.Err() != nil {
			return wire.ChannelData{}, ctx.Err()
		}
		return wire.ChannelData{}, ErrSignTimeout
	}

	funder := channel.NewFunder(p.reader).WithPolling(p.cfg.PollingInterval, p.cfg.MaxPollingAttempts)
	data, err := funder.PollUntilOpen(ctx, msgs.Channel.Identity)
	if err != nil {
		return wire.ChannelData{}, err
	}
	ch, err := msgs.Channel.WithInitBalances(data.BalanceA, data.BalanceB)
	if err != nil {
		return wire.ChannelData{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch, p.state = ch, data.State()
	p.log.Log().Infof("Channel opened with %v", p.state)
	return data, nil
}

// SignSend signs the state paying amount to the service and keeps it.
func (p *Payer) SignSend(amount *big.Int) (wire.ChannelState, []byte, error) {
	return p.sign(true, amount)
}

// SignReceive signs the state in which the service pays amount back and
// keeps it.
func (p *Payer) SignReceive(amount *big.Int) (wire.ChannelState, []byte, error) {
	return p.sign(false, amount)
}

func (p *Payer) sign(fromA bool, amount *big.Int) (wire.ChannelState, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := channel.Transfer(p.state, fromA, amount)
	if err != nil {
		return wire.ChannelState{}, nil, err
	}
	sig, err := p.ch.SignState(next)
	if err != nil {
		return wire.ChannelState{}, nil, err
	}
	p.state = next
	return next.Clone(), sig, nil
}

// Close completes the service's close offer and submits it. Offers paying
// the client less than its last signed state are refused.
func (p *Payer) Close(ctx context.Context, closeState wire.ChannelState, serviceSigHex string) error {
	sig, err := wallet.DecodeSigHex(serviceSigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", channel.ErrInvalidSignature, err)
	}
	if err := closeState.Valid(); err != nil {
		return err
	}
	p.mu.Lock()
	ch, local := p.ch, p.state.Clone()
	p.mu.Unlock()
	if closeState.BalanceA.Cmp(local.BalanceA) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrUnfavorableClose, closeState.BalanceA, local.BalanceA)
	}
	return channel.NewAdjudicator(ch, p.reader, p.sender).CooperativeClose(ctx, closeState, sig)
}
