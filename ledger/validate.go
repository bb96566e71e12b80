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
	"fmt"
	"math/big"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/wire"
)

// Direction tells which side of the channel a payment flows to.
type Direction int

const (
	// ClientPays credits the service at least the amount.
	ClientPays Direction = iota
	// ServicePays debits the service exactly the amount.
	ServicePays
)

func (d Direction) String() string {
	if d == ServicePays {
		return "service_pays"
	}
	return "client_pays"
}

var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Validate checks a client-signed candidate against the current state from
// the service's point of view. ch must be the service's channel. The order
// of checks is signature, payment, transition. It returns the state to
// commit; nothing is changed on error.
func Validate(ch *channel.Channel, current, candidate wire.ChannelState, sig []byte, amount *big.Int, dir Direction) (wire.ChannelState, error) {
	if ch.IsA() {
		return wire.ChannelState{}, errors.New("validation needs the service's view of the channel")
	}
	if amount == nil || amount.Sign() < 0 {
		return wire.ChannelState{}, ErrInvalidAmount
	}
	if err := candidate.Valid(); err != nil {
		return wire.ChannelState{}, err
	}
	if !ch.VerifyState(candidate, sig) {
		return wire.ChannelState{}, channel.ErrInvalidSignature
	}

	oldB, newB := current.BalanceB, candidate.BalanceB
	switch dir {
	case ServicePays:
		if want := new(big.Int).Sub(oldB, amount); newB.Cmp(want) != 0 {
			return wire.ChannelState{}, fmt.Errorf("%w: service balance %v, want exactly %v", ErrInsufficientPayment, newB, want)
		}
	case ClientPays:
		if want := new(big.Int).Add(oldB, amount); newB.Cmp(want) < 0 {
			return wire.ChannelState{}, fmt.Errorf("%w: service balance %v, want at least %v", ErrInsufficientPayment, newB, want)
		}
	default:
		return wire.ChannelState{}, fmt.Errorf("unknown direction %d", dir)
	}

	if err := channel.ValidTransition(current, candidate); err != nil {
		return wire.ChannelState{}, err
	}
	return candidate.Clone(), nil
}
