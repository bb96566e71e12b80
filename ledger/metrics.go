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

package ledger

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wire"
)

type metrics struct {
	commits    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	channels   *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *metrics
)

func defaultMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &metrics{
			commits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pton",
				Subsystem: "ledger",
				Name:      "commits_total",
				Help:      "Channel states accepted and committed, by payment direction.",
			}, []string{"direction"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pton",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Channel states rejected by the validation gate, by reason.",
			}, []string{"reason"}),
			channels: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pton",
				Subsystem: "ledger",
				Name:      "channel_events_total",
				Help:      "Channel lifecycle changes recorded in the ledger.",
			}, []string{"event"}),
		}
		prometheus.MustRegister(
			metricsRegistry.commits,
			metricsRegistry.rejections,
			metricsRegistry.channels,
		)
	})
	return metricsRegistry
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, channel.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, channel.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	case errors.Is(err, ErrChannelNotInitialized), errors.Is(err, ErrChannelClosed):
		return "channel_state"
	case errors.Is(err, wire.ErrEncoding):
		return "encoding"
	default:
		return "other"
	}
}
