// Copyright 2024 PolyCrypt GmbH
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
package event

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	pchannel "perun.network/go-perun/channel"

	"perun.network/perun-ton-backend/wire"
)

type Version = uint64
type EventType int

const (
	EventTypeOpen                 EventType = iota // channel initialized and funded
	EventTypeClosureStarted                        // uncooperative close, quarantine running
	EventTypeSettling                              // conditionals being settled
	EventTypeAwaitingFinalization                  // waiting for finish_uncooperative_close
	EventTypeClosed                                // contract paid out and reset
	EventTypeError                                 // inconsistent event
)

func (t EventType) String() string {
	switch t {
	case EventTypeOpen:
		return "open"
	case EventTypeClosureStarted:
		return "closure_started"
	case EventTypeSettling:
		return "settling"
	case EventTypeAwaitingFinalization:
		return "awaiting_finalization"
	case EventTypeClosed:
		return "closed"
	default:
		return "error"
	}
}

var (
	ErrIllegalTransition = errors.New("illegal channel status transition")
	ErrEventUnsupported  = errors.New("this type of event is unsupported")
)

type (
	PerunEvent interface {
		GetID() *big.Int
		GetStatus() wire.ChannelStatus
		GetData() wire.ChannelData
		GetVersion() Version
		GetType() EventType
		ObservedAt() time.Time
	}

	eventBase struct {
		idv      *big.Int
		status   wire.ChannelStatus
		data     wire.ChannelData
		observed time.Time
	}

	OpenEvent struct {
		eventBase
	}

	// ClosureStartedEvent is emitted once a party submitted its signed state
	// and the quarantine is running. Timeout is the end of the quarantine,
	// counted from when the status was observed.
	ClosureStartedEvent struct {
		eventBase
		Timeout pchannel.Timeout
	}

	SettlingEvent struct {
		eventBase
		Timeout pchannel.Timeout
	}

	AwaitingFinalizationEvent struct {
		eventBase
	}

	// ClosedEvent carries the data observed last before the contract reset.
	ClosedEvent struct {
		eventBase
	}
)

func (e eventBase) GetID() *big.Int {
	if e.idv == nil {
		return nil
	}
	return new(big.Int).Set(e.idv)
}

func (e eventBase) GetStatus() wire.ChannelStatus {
	return e.status
}

func (e eventBase) GetData() wire.ChannelData {
	return e.data
}

// ObservedAt is when the status was first read.
func (e eventBase) ObservedAt() time.Time {
	return e.observed
}

// GetVersion is the sum of the committed seqnos.
func (e eventBase) GetVersion() Version {
	return e.data.SeqnoA + e.data.SeqnoB
}

func (e *OpenEvent) GetType() EventType                 { return EventTypeOpen }
func (e *ClosureStartedEvent) GetType() EventType       { return EventTypeClosureStarted }
func (e *SettlingEvent) GetType() EventType             { return EventTypeSettling }
func (e *AwaitingFinalizationEvent) GetType() EventType { return EventTypeAwaitingFinalization }
func (e *ClosedEvent) GetType() EventType               { return EventTypeClosed }

// NewEvent builds the event announcing that the channel reached status. last
// is the most recent channel data; for a closed channel it is the data seen
// before the reset. at is when the status was observed.
func NewEvent(id *big.Int, status wire.ChannelStatus, last wire.ChannelData, at time.Time) (PerunEvent, error) {
	base := eventBase{idv: id, status: status, data: last, observed: at}
	switch status {
	case wire.StatusOpen:
		return &OpenEvent{eventBase: base}, nil
	case wire.StatusClosureStarted:
		return &ClosureStartedEvent{eventBase: base, Timeout: Deadline(at, last.QuarantineDuration)}, nil
	case wire.StatusSettlingConditionals:
		return &SettlingEvent{eventBase: base, Timeout: Deadline(at, last.ConditionalCloseDuration)}, nil
	case wire.StatusAwaitingFinalization:
		return &AwaitingFinalizationEvent{eventBase: base}, nil
	case wire.StatusUninited:
		return &ClosedEvent{eventBase: base}, nil
	default:
		return nil, fmt.Errorf("%w: status %d", ErrEventUnsupported, status)
	}
}

// Transition returns the event for a status change from curr to next, or nil
// when the status did not change. Statuses only move forward, except for the
// reset to uninited when the contract pays out.
func Transition(id *big.Int, curr, next wire.ChannelStatus, last wire.ChannelData, at time.Time) (PerunEvent, error) {
	if curr == next {
		return nil, nil
	}
	if next != wire.StatusUninited && next < curr {
		return nil, fmt.Errorf("%w: %v -> %v", ErrIllegalTransition, curr, next)
	}
	return NewEvent(id, next, last, at)
}
