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
package event_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pchannel "perun.network/go-perun/channel"

	"perun.network/perun-ton-backend/event"
	"perun.network/perun-ton-backend/wire"
)

func TestTransition(t *testing.T) {
	id := big.NewInt(42)
	data := wire.ChannelData{SeqnoA: 3, SeqnoB: 4, QuarantineDuration: 3600, ConditionalCloseDuration: 60}
	at := time.Now()

	ev, err := event.Transition(id, wire.StatusOpen, wire.StatusOpen, data, at)
	require.NoError(t, err)
	require.Nil(t, ev)

	ev, err = event.Transition(id, wire.StatusUninited, wire.StatusOpen, data, at)
	require.NoError(t, err)
	require.Equal(t, event.EventTypeOpen, ev.GetType())
	require.Equal(t, uint64(7), ev.GetVersion())
	require.Zero(t, id.Cmp(ev.GetID()))

	ev, err = event.Transition(id, wire.StatusOpen, wire.StatusClosureStarted, data, at)
	require.NoError(t, err)
	started, ok := ev.(*event.ClosureStartedEvent)
	require.True(t, ok)
	require.False(t, started.Timeout.IsElapsed(context.Background()))
	tt, ok := started.Timeout.(*pchannel.TimeTimeout)
	require.True(t, ok)
	require.Equal(t, at.Add(time.Hour), tt.Time)
	require.Equal(t, at, started.ObservedAt())

	ev, err = event.Transition(id, wire.StatusClosureStarted, wire.StatusSettlingConditionals, data, at)
	require.NoError(t, err)
	settling, ok := ev.(*event.SettlingEvent)
	require.True(t, ok)
	require.Equal(t, at.Add(time.Minute), settling.Timeout.(*pchannel.TimeTimeout).Time)

	ev, err = event.Transition(id, wire.StatusOpen, wire.StatusAwaitingFinalization, data, at)
	require.NoError(t, err)
	require.Equal(t, event.EventTypeAwaitingFinalization, ev.GetType())

	ev, err = event.Transition(id, wire.StatusAwaitingFinalization, wire.StatusUninited, data, at)
	require.NoError(t, err)
	require.Equal(t, event.EventTypeClosed, ev.GetType())

	_, err = event.Transition(id, wire.StatusSettlingConditionals, wire.StatusOpen, data, at)
	require.ErrorIs(t, err, event.ErrIllegalTransition)

	_, err = event.NewEvent(id, wire.ChannelStatus(9), data, at)
	require.ErrorIs(t, err, event.ErrEventUnsupported)
}

func TestDeadline(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d := event.Deadline(start, 90)
	require.True(t, d.IsElapsed(context.Background()))
	require.Equal(t, start.Add(90*time.Second), d.(*pchannel.TimeTimeout).Time)
	require.Equal(t, 2*time.Minute, event.Seconds(120))
}
