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

package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"io"

	"polycry.pt/poly-go/sync"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// EphemeralWallet keeps accounts in memory, keyed by their public key.
type EphemeralWallet struct {
	lock     sync.Mutex
	accounts map[string]*Account
}

func (e *EphemeralWallet) Unlock(pub ed25519.PublicKey) (*Account, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	account, ok := e.accounts[hex.EncodeToString(pub)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (e *EphemeralWallet) AddNewAccount(rng io.Reader) (*Account, error) {
	acc, err := NewRandomAccount(rng)
	if err != nil {
		return nil, err
	}
	return acc, e.AddAccount(acc)
}

func (e *EphemeralWallet) AddAccount(acc *Account) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	k := hex.EncodeToString(acc.PublicKey())
	if _, ok := e.accounts[k]; ok {
		return ErrAccountExists
	}
	e.accounts[k] = acc
	return nil
}

func NewEphemeralWallet() *EphemeralWallet {
	return &EphemeralWallet{
		accounts: make(map[string]*Account),
	}
}
