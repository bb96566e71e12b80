// Copyright 2023 PolyCrypt GmbH
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
	"math/big"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/log"

	"perun.network/perun-ton-backend/wire"
)

const MaxIterationsUntilAbort = 100
const DefaultPollingInterval = time.Duration(1) * time.Second

// Amounts attached to the open messages, in nanotons.
var (
	DeployValue = big.NewInt(15_000_000)
	TopUpFee    = big.NewInt(15_000_000)
	InitValue   = big.NewInt(20_000_000)
)

var ErrOpenTimeout = errors.New("channel not open")

// Message is an internal message a wallet sends to the channel contract.
type Message struct {
	To        *address.Address
	Amount    *big.Int
	Bounce    bool
	StateInit *tlb.StateInit
	Body      *cell.Cell
}

// Internal converts m to the internal message a wallet signs.
func (m Message) Internal() *tlb.InternalMessage {
	return &tlb.InternalMessage{
		IHRDisabled: true,
		Bounce:      m.Bounce,
		SrcAddr:     address.NewAddressNone(),
		DstAddr:     m.To,
		Amount:      tlb.FromNanoTON(m.Amount),
		StateInit:   m.StateInit,
		Body:        m.Body,
	}
}

// OpenMessages are sent in one wallet transaction to deploy, fund and
// initialize a channel.
type OpenMessages struct {
	Deploy Message
	TopUp  Message
	Init   Message
	// Channel is the channel rebound to the initial balances of Init.
	Channel *Channel
}

// All returns the messages in the order they have to be sent.
func (m OpenMessages) All() []Message {
	return []Message{m.Deploy, m.TopUp, m.Init}
}

// BuildOpenChannelMessages builds the deploy, top-up and init messages with
// which the party of ch opens the channel with initialBalance. The initial
// balance of the other party is taken from ch.
func BuildOpenChannelMessages(ch *Channel, initialBalance *big.Int) (OpenMessages, error) {
	if initialBalance == nil || initialBalance.Sign() < 0 {
		return OpenMessages{}, fmt.Errorf("%w: invalid initial balance", ErrInvalidIdentity)
	}
	initA, initB := initialBalance, ch.InitBalance(false)
	topUp := wire.TopUpBalance{CoinsA: initialBalance, CoinsB: new(big.Int)}
	if !ch.isA {
		initA, initB = ch.InitBalance(true), initialBalance
		topUp = wire.TopUpBalance{CoinsA: new(big.Int), CoinsB: initialBalance}
	}
	opened, err := ch.WithInitBalances(initA, initB)
	if err != nil {
		return OpenMessages{}, err
	}

	si, err := StateInit(opened.config)
	if err != nil {
		return OpenMessages{}, err
	}
	topUpBody, err := topUp.ToCell()
	if err != nil {
		return OpenMessages{}, err
	}
	initBody, err := wire.InitChannel{ChannelID: opened.ChannelID(), BalanceA: initA, BalanceB: initB}.ToCell()
	if err != nil {
		return OpenMessages{}, err
	}
	initMsg, err := opened.signOne(wire.OpInitChannel, initBody)
	if err != nil {
		return OpenMessages{}, err
	}

	to := opened.Address()
	return OpenMessages{
		Deploy:  Message{To: to, Amount: new(big.Int).Set(DeployValue), StateInit: si},
		TopUp:   Message{To: to, Amount: new(big.Int).Add(initialBalance, TopUpFee), Body: topUpBody},
		Init:    Message{To: to, Amount: new(big.Int).Set(InitValue), Body: initMsg},
		Channel: opened,
	}, nil
}

// signOne signs body and wraps it into a one-signature envelope.
func (c *Channel) signOne(op uint32, body *cell.Cell) (*cell.Cell, error) {
	sig, err := c.account.SignCell(body)
	if err != nil {
		return nil, err
	}
	return wire.OneSignature(op, c.isA, sig, body)
}

// Funder waits for channels to be opened on-chain.
type Funder struct {
	reader          ChainReader
	maxIters        int
	pollingInterval time.Duration
	log             log.Embedding
}

func NewFunder(reader ChainReader) *Funder {
	return &Funder{
		reader:          reader,
		maxIters:        MaxIterationsUntilAbort,
		pollingInterval: DefaultPollingInterval,
		log:             log.MakeEmbedding(log.Default()),
	}
}

// WithPolling sets the polling interval and the number of attempts.
// Non-positive values keep the defaults.
func (f *Funder) WithPolling(interval time.Duration, maxIters int) *Funder {
	if interval > 0 {
		f.pollingInterval = interval
	}
	if maxIters > 0 {
		f.maxIters = maxIters
	}
	return f
}

// PollUntilOpen reads the status of the channel contract until it is OPEN
// and returns its data. It gives up with ErrOpenTimeout after the configured
// number of attempts. Read errors count as failed attempts.
func (f *Funder) PollUntilOpen(ctx context.Context, id *Identity) (wire.ChannelData, error) {
	var lastErr error
	for i := 0; i < f.maxIters; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return wire.ChannelData{}, ctx.Err()
			case <-time.After(f.pollingInterval):
			}
		}

		status, err := id.GetChannelState(ctx, f.reader)
		if err != nil {
			f.log.Log().Warnf("Polling channel %s: %v", id.Address(), err)
			lastErr = err
			continue
		}
		if status != wire.StatusOpen {
			f.log.Log().Debugf("Channel %s is %v, waiting", id.Address(), status)
			continue
		}

		data, err := id.GetData(ctx, f.reader)
		if err != nil {
			lastErr = err
			continue
		}
		f.log.Log().Infof("Channel %s is open", id.Address())
		return data, nil
	}
	if lastErr != nil {
		return wire.ChannelData{}, fmt.Errorf("%w after %d attempts: %v", ErrOpenTimeout, f.maxIters, lastErr)
	}
	return wire.ChannelData{}, fmt.Errorf("%w after %d attempts", ErrOpenTimeout, f.maxIters)
}
