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

package test

import (
	"math/rand"

	"github.com/xssnick/tonutils-go/address"

	"perun.network/perun-ton-backend/wallet"
	"perun.network/perun-ton-backend/wallet/types"
)

// NewRandomAddress returns a basechain address with a random account id.
func NewRandomAddress(rng *rand.Rand) *address.Address {
	hash := make([]byte, types.AddressHashLength)
	rng.Read(hash)
	return address.NewAddress(0, 0, hash)
}

// NewRandomAccount panics on failure, which cannot happen with a math/rand source.
func NewRandomAccount(rng *rand.Rand) *wallet.Account {
	acc, err := wallet.NewRandomAccount(rng)
	if err != nil {
		panic(err)
	}
	return acc
}

// NewRandomParticipant returns an account and the participant it signs for.
func NewRandomParticipant(rng *rand.Rand) (*wallet.Account, *types.Participant) {
	acc := NewRandomAccount(rng)
	return acc, acc.Participant(NewRandomAddress(rng))
}
