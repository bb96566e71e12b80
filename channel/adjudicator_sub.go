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
	"context"
	"time"

	log "perun.network/go-perun/log"
	pkgsync "polycry.pt/poly-go/sync"

	"perun.network/perun-ton-backend/event"
	"perun.network/perun-ton-backend/wire"
)

const (
	DefaultBufferSize                  = 1024
	DefaultSubscriptionPollingInterval = time.Duration(5) * time.Second
	// maxReadBackoff caps the polling interval after failed reads, as a
	// multiple of the polling interval.
	maxReadBackoff = 32
)

// AdjEventSub polls the status of a channel contract and emits an event on
// every status change. It ends after the channel was closed. Failed reads
// are retried with backoff until the context is done.
type AdjEventSub struct {
	id           *Identity
	reader       ChainReader
	initial      wire.ChannelStatus
	status       wire.ChannelStatus
	last         wire.ChannelData
	events       chan event.PerunEvent
	errMu        pkgsync.Mutex
	err          error
	cancel       context.CancelFunc
	closer       *pkgsync.Closer
	pollInterval time.Duration
	log          log.Embedding
}

func NewAdjudicatorSub(ctx context.Context, id *Identity, reader ChainReader) (*AdjEventSub, error) {
	return NewAdjudicatorSubWithInterval(ctx, id, reader, DefaultSubscriptionPollingInterval)
}

// NewAdjudicatorSubWithInterval reads the current status and starts polling
// for changes every pollInterval.
func NewAdjudicatorSubWithInterval(ctx context.Context, id *Identity, reader ChainReader, pollInterval time.Duration) (*AdjEventSub, error) {
	sub := &AdjEventSub{
		id:           id,
		reader:       reader,
		events:       make(chan event.PerunEvent, DefaultBufferSize),
		pollInterval: pollInterval,
		closer:       new(pkgsync.Closer),
		log:          log.MakeEmbedding(log.WithField("channel", id.Address().String())),
	}
	status, data, err := sub.read(ctx)
	if err != nil {
		return nil, err
	}
	sub.initial, sub.status, sub.last = status, status, data

	ctx, sub.cancel = context.WithCancel(ctx)
	sub.closer.OnCloseAlways(sub.cancel)
	go sub.run(ctx)
	return sub, nil
}

// read returns the status and, unless the contract is uninited, its data.
func (s *AdjEventSub) read(ctx context.Context) (wire.ChannelStatus, wire.ChannelData, error) {
	status, err := s.id.GetChannelState(ctx, s.reader)
	if err != nil {
		return status, wire.ChannelData{}, err
	}
	if status == wire.StatusUninited {
		return status, wire.ChannelData{}, nil
	}
	data, err := s.id.GetData(ctx, s.reader)
	return status, data, err
}

func (s *AdjEventSub) run(ctx context.Context) {
	s.log.Log().Info("Listening for channel state changes")
	finish := func(err error) {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.events)
	}

	wait, failures := s.pollInterval, 0
	for {
		select {
		case <-ctx.Done():
			finish(nil)
			return
		case <-time.After(wait):
		}

		status, data, err := s.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				finish(nil)
				return
			}
			failures++
			if wait < maxReadBackoff*s.pollInterval {
				wait *= 2
			}
			s.log.Log().Warnf("Reading channel status failed (%d in a row), retrying in %v: %v", failures, wait, err)
			continue
		}
		if failures > 0 {
			s.log.Log().Infof("Reading channel status recovered after %d failures", failures)
		}
		wait, failures = s.pollInterval, 0
		last := data
		if status == wire.StatusUninited {
			last = s.last
		}
		ev, err := event.Transition(s.id.ChannelID(), s.status, status, last, time.Now())
		if err != nil {
			finish(err)
			return
		}
		s.status, s.last = status, last
		if ev == nil {
			s.log.Log().Debug("No events yet, continuing polling...")
			continue
		}

		s.log.Log().Debugf("Found event: %v", ev.GetType())
		select {
		case s.events <- ev:
		case <-ctx.Done():
			finish(nil)
			return
		}
		if ev.GetType() == event.EventTypeClosed {
			finish(nil)
			return
		}
	}
}

// Status returns the status observed when the subscription started.
func (s *AdjEventSub) Status() wire.ChannelStatus {
	return s.initial
}
