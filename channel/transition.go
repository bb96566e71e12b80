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
	"fmt"
	"math"
	"math/big"

	"perun.network/perun-ton-backend/wire"
)

// ValidTransition checks that next may follow curr off-chain: the total is
// conserved, exactly one seqno advances by one, and it is the seqno of the
// party whose balance decreased.
func ValidTransition(curr, next wire.ChannelState) error {
	if err := curr.Valid(); err != nil {
		return fmt.Errorf("%w: current state: %v", ErrInvalidTransition, err)
	}
	if err := next.Valid(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if curr.Total().Cmp(next.Total()) != 0 {
		return fmt.Errorf("%w: total changed from %v to %v", ErrInvalidTransition, curr.Total(), next.Total())
	}

	// An exhausted seqno cannot advance.
	advancedA := curr.SeqnoA < math.MaxUint64 && next.SeqnoA == curr.SeqnoA+1 && next.SeqnoB == curr.SeqnoB
	advancedB := curr.SeqnoB < math.MaxUint64 && next.SeqnoB == curr.SeqnoB+1 && next.SeqnoA == curr.SeqnoA
	if !advancedA && !advancedB {
		return fmt.Errorf("%w: seqnos %d/%d -> %d/%d", ErrInvalidTransition,
			curr.SeqnoA, curr.SeqnoB, next.SeqnoA, next.SeqnoB)
	}
	if advancedB && next.BalanceA.Cmp(curr.BalanceA) < 0 {
		return fmt.Errorf("%w: balance of A decreased without its seqno", ErrInvalidTransition)
	}
	if advancedA && next.BalanceB.Cmp(curr.BalanceB) < 0 {
		return fmt.Errorf("%w: balance of B decreased without its seqno", ErrInvalidTransition)
	}
	return nil
}

// Advance returns next if sig is the counterparty's signature over it and
// next is a valid successor of curr. curr is never modified.
func (c *Channel) Advance(curr, next wire.ChannelState, sig []byte) (wire.ChannelState, error) {
	if !c.VerifyState(next, sig) {
		return curr, ErrInvalidSignature
	}
	if err := ValidTransition(curr, next); err != nil {
		return curr, err
	}
	c.log.Log().Debugf("Advanced to %v", next)
	return next.Clone(), nil
}

// Transfer returns the successor of curr in which party fromA pays amount to
// the other party. The payer's seqno advances.
func Transfer(curr wire.ChannelState, fromA bool, amount *big.Int) (wire.ChannelState, error) {
	if err := curr.Valid(); err != nil {
		return curr, err
	}
	if amount == nil || amount.Sign() < 0 {
		return curr, fmt.Errorf("%w: negative amount", ErrInvalidTransition)
	}
	if (fromA && curr.SeqnoA == math.MaxUint64) || (!fromA && curr.SeqnoB == math.MaxUint64) {
		return curr, fmt.Errorf("%w: seqno exhausted", ErrInvalidTransition)
	}
	next := curr.Clone()
	if fromA {
		next.BalanceA.Sub(next.BalanceA, amount)
		next.BalanceB.Add(next.BalanceB, amount)
		next.SeqnoA++
	} else {
		next.BalanceB.Sub(next.BalanceB, amount)
		next.BalanceA.Add(next.BalanceA, amount)
		next.SeqnoB++
	}
	if next.BalanceA.Sign() < 0 || next.BalanceB.Sign() < 0 {
		return curr, fmt.Errorf("%w: insufficient balance", ErrInvalidTransition)
	}
	return next, nil
}
