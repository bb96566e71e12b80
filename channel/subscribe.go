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
	"perun.network/perun-ton-backend/event"
)

// Next blocks until the next event arrives. It returns nil once the
// subscription ended; Err tells why.
func (s *AdjEventSub) Next() event.PerunEvent {
	if s.closer.IsClosed() {
		return nil
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil
		}
		return ev
	case <-s.closer.Closed():
		return nil
	}
}

// Close stops polling.
func (s *AdjEventSub) Close() error {
	s.closer.Close()
	return nil
}

func (s *AdjEventSub) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
