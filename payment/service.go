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
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	"perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/event"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wallet/types"
	"perun.network/perun-ton-backend/wire"
)

var ErrInvalidInput = errors.New("invalid input")

// ServiceConfig configures a Service. Zero polling values select the
// channel package defaults.
type ServiceConfig struct {
	Account *wallet.Account
	Address *address.Address
	Ledger  *ledger.Ledger
	Reader  channel.ChainReader
	Sender  channel.Sender
	Prices  Prices

	PollingInterval      time.Duration
	MaxPollingAttempts   int
	SubscriptionInterval time.Duration
	// WatchChannels starts a watcher for every channel once it is
	// initialized.
	WatchChannels bool
}

// Service is the service side of all channels: it creates and initializes
// them, charges for actions and answers close requests and disputes.
type Service struct {
	pkgsync.Closer
	cfg    ServiceConfig
	funder *channel.Funder
	ctx    context.Context
	log    log.Embedding
}

// CloseOffer is the final state of a channel together with the service's
// close signature, which the client completes and submits.
type CloseOffer struct {
	State     wire.ChannelState
	Signature string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Account == nil || cfg.Address == nil || cfg.Ledger == nil || cfg.Reader == nil || cfg.Sender == nil {
		return nil, errors.New("service config incomplete")
	}
	if cfg.Prices == nil {
		cfg.Prices = DefaultPrices()
	}
	if cfg.SubscriptionInterval <= 0 {
		cfg.SubscriptionInterval = channel.DefaultSubscriptionPollingInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:    cfg,
		funder: channel.NewFunder(cfg.Reader).WithPolling(cfg.PollingInterval, cfg.MaxPollingAttempts),
		ctx:    ctx,
		log:    log.MakeEmbedding(log.WithField("component", "service")),
	}
	s.OnCloseAlways(cancel)
	return s, nil
}

// Prices returns the price table the service charges.
func (s *Service) Prices() Prices {
	return s.cfg.Prices
}

// CreateChannel assigns a fresh channel id to a client and records the
// channel. The client deploys it afterwards.
func (s *Service) CreateChannel(ctx context.Context, clientAddress, clientPublicKeyHex string) (*ledger.Row, error) {
	addr, err := types.ParseAddress(clientAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: client address: %v", ErrInvalidInput, err)
	}
	pub, err := hex.DecodeString(clientPublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: client public key: %v", ErrInvalidInput, err)
	}
	uid := uuid.New()
	id, err := channel.CreateChannelIdentity(addr, pub, s.cfg.Account.PublicKey(), s.cfg.Address,
		new(big.Int).SetBytes(uid[:]))
	if err != nil {
		return nil, err
	}
	return s.cfg.Ledger.Create(ctx, id)
}

// InitChannel waits until the client opened the channel on-chain and takes
// over its balances.
func (s *Service) InitChannel(ctx context.Context, channelID string) (*ledger.Row, error) {
	row, err := s.cfg.Ledger.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if row.Initialized {
		return row, nil
	}
	id, err := row.Identity()
	if err != nil {
		return nil, err
	}
	data, err := s.funder.PollUntilOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	row, err = s.cfg.Ledger.Initialize(ctx, channelID, data)
	if err != nil {
		return nil, err
	}
	if s.cfg.WatchChannels {
		s.watch(channelID)
	}
	return row, nil
}

// ResumeWatching starts a watcher for every initialized channel of the
// ledger, e.g. after a restart. Watchers of channels that are already
// closed on-chain return right away.
func (s *Service) ResumeWatching(ctx context.Context) (int, error) {
	ids, err := s.cfg.Ledger.InitializedChannels(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.watch(id)
	}
	return len(ids), nil
}

// watch runs WatchChannel in the background and restarts it after errors
// until the channel is closed on-chain or the service is closed.
func (s *Service) watch(channelID string) {
	go func() {
		for {
			err := s.WatchChannel(s.ctx, channelID)
			if err == nil || s.IsClosed() {
				return
			}
			if errors.Is(err, ledger.ErrChannelNotFound) {
				s.log.Log().Errorf("Watching channel %s: %v", channelID, err)
				return
			}
			s.log.Log().Warnf("Watching channel %s: %v, restarting", channelID, err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.SubscriptionInterval):
			}
		}
	}()
}

// Pay charges units of action. stateWire and sigHex are the state the client
// signed and its signature.
func (s *Service) Pay(ctx context.Context, channelID string, action Action, units uint64, stateWire []byte,
	sigHex string) (*ledger.Row, error) {
	amount, err := s.cfg.Prices.Amount(action, units)
	if err != nil {
		return nil, err
	}
	return s.cfg.Ledger.ValidateAndCommit(ctx, channelID, stateWire, sigHex, amount, ledger.ClientPays)
}

// Refund pays amount back to the client. The client-signed state must
// decrease the service balance by exactly amount.
func (s *Service) Refund(ctx context.Context, channelID string, amount *big.Int, stateWire []byte,
	sigHex string) (*ledger.Row, error) {
	return s.cfg.Ledger.ValidateAndCommit(ctx, channelID, stateWire, sigHex, amount, ledger.ServicePays)
}

// CloseChannel stops accepting states of the channel and signs the close of
// its last state. Asking again returns the same offer.
func (s *Service) CloseChannel(ctx context.Context, channelID string) (CloseOffer, error) {
	row, err := s.cfg.Ledger.Get(ctx, channelID)
	if err != nil {
		return CloseOffer{}, err
	}
	if !row.Initialized {
		return CloseOffer{}, ledger.ErrChannelNotInitialized
	}
	if row, err = s.cfg.Ledger.MarkClosed(ctx, channelID); err != nil {
		return CloseOffer{}, err
	}
	ch, err := s.cfg.Ledger.Channel(row)
	if err != nil {
		return CloseOffer{}, err
	}
	state, err := row.State()
	if err != nil {
		return CloseOffer{}, err
	}
	sig, err := ch.SignClose(state)
	if err != nil {
		return CloseOffer{}, err
	}
	s.log.Log().Infof("Offering close of channel %s at %v", channelID, state)
	return CloseOffer{State: state, Signature: hex.EncodeToString(sig)}, nil
}

// WatchChannel follows the on-chain status of the channel until it is
// closed. An uncooperative close, also one already running when watching
// starts, marks the row closed and is challenged with the last state the
// client signed. The service finishes the close once it awaits
// finalization.
func (s *Service) WatchChannel(ctx context.Context, channelID string) error {
	row, err := s.cfg.Ledger.Get(ctx, channelID)
	if err != nil {
		return err
	}
	ch, err := s.cfg.Ledger.Channel(row)
	if err != nil {
		return err
	}
	adj := channel.NewAdjudicator(ch, s.cfg.Reader, s.cfg.Sender)
	sub, err := channel.NewAdjudicatorSubWithInterval(ctx, ch.Identity, s.cfg.Reader, s.cfg.SubscriptionInterval)
	if err != nil {
		return err
	}
	defer sub.Close()

	switch sub.Status() {
	case wire.StatusUninited:
		if row.Initialized {
			_, err := s.cfg.Ledger.MarkClosed(ctx, channelID)
			return err
		}
	case wire.StatusClosureStarted:
		s.challenge(ctx, adj, channelID)
	}

	for ev := sub.Next(); ev != nil; ev = sub.Next() {
		switch ev.(type) {
		case *event.ClosureStartedEvent:
			s.challenge(ctx, adj, channelID)
		case *event.AwaitingFinalizationEvent:
			if err := adj.FinishUncooperativeClose(ctx); err != nil {
				s.log.Log().Errorf("Finishing close of channel %s: %v", channelID, err)
			}
		case *event.ClosedEvent:
			if _, err := s.cfg.Ledger.MarkClosed(ctx, channelID); err != nil {
				return err
			}
			s.log.Log().Infof("Channel %s closed on-chain", channelID)
			return nil
		}
	}
	return sub.Err()
}

func (s *Service) challenge(ctx context.Context, adj *channel.Adjudicator, channelID string) {
	row, err := s.cfg.Ledger.MarkClosed(ctx, channelID)
	if err != nil {
		s.log.Log().Errorf("Closing channel %s: %v", channelID, err)
		return
	}
	sig, err := row.Signature()
	if err != nil || sig == nil {
		s.log.Log().Warnf("Channel %s: no client-signed state to challenge with", channelID)
		return
	}
	ch, err := s.cfg.Ledger.Channel(row)
	if err != nil {
		s.log.Log().Errorf("Channel %s: %v", channelID, err)
		return
	}
	state, err := row.State()
	if err != nil {
		s.log.Log().Errorf("Channel %s: %v", channelID, err)
		return
	}
	signed, err := ch.CounterpartySignedState(state, sig)
	if err != nil {
		s.log.Log().Errorf("Channel %s: stored client state: %v", channelID, err)
		return
	}
	if err := adj.Challenge(ctx, state, signed); err != nil {
		s.log.Log().Errorf("Challenging close of channel %s: %v", channelID, err)
		return
	}
	s.log.Log().Infof("Challenged close of channel %s with %v", channelID, state)
}
