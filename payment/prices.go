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
	"errors"
	"fmt"
	"math/big"
)

// Action is something a client pays for.
type Action string

const (
	ActionCreate    Action = "create"
	ActionView      Action = "view"
	ActionLike      Action = "like"
	ActionFire      Action = "fire"
	ActionBrilliant Action = "brilliant"
)

var ErrUnknownAction = errors.New("unknown action")

// Prices maps actions to their unit price in nanotons.
type Prices map[Action]*big.Int

// DefaultPrices returns the default price table.
func DefaultPrices() Prices {
	return Prices{
		ActionCreate:    big.NewInt(10_000_000),
		ActionView:      big.NewInt(50_000),
		ActionLike:      big.NewInt(10_000_000),
		ActionFire:      big.NewInt(100_000_000),
		ActionBrilliant: big.NewInt(1_000_000_000),
	}
}

// Amount returns the price of units times action.
func (p Prices) Amount(action Action, units uint64) (*big.Int, error) {
	price, ok := p[action]
	if !ok || price == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(units)), nil
}

// IsReaction tells whether action is one of the reactions on a post.
func IsReaction(action Action) bool {
	switch action {
	case ActionLike, ActionFire, ActionBrilliant:
		return true
	}
	return false
}
