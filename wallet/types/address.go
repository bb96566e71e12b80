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

package types

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
)

// AddressHashLength is the length of the account id part of an address.
const AddressHashLength = 32

// participantLength is public key, workchain byte and account id.
const participantLength = ed25519.PublicKeySize + 1 + AddressHashLength

// Participant is one side of a payment channel.
type Participant struct {
	// Address is the wallet the participant withdraws to.
	Address *address.Address
	// PublicKey is the public key of the participant, which is used to verify signatures on channel state.
	PublicKey ed25519.PublicKey
}

func NewParticipant(addr *address.Address, pk ed25519.PublicKey) *Participant {
	return &Participant{
		Address:   addr,
		PublicKey: pk,
	}
}

// MarshalBinary encodes the participant into binary form. Address flags are
// not part of the encoding.
func (p Participant) MarshalBinary() (data []byte, err error) {
	if len(p.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(p.PublicKey))
	}
	if p.Address == nil || len(p.Address.Data()) != AddressHashLength {
		return nil, fmt.Errorf("invalid address")
	}
	res := make([]byte, participantLength)
	copy(res, p.PublicKey)
	res[ed25519.PublicKeySize] = byte(p.Address.Workchain())
	copy(res[ed25519.PublicKeySize+1:], p.Address.Data())
	return res, nil
}

// UnmarshalBinary decodes the participant from binary form.
func (p *Participant) UnmarshalBinary(data []byte) error {
	if len(data) != participantLength {
		return fmt.Errorf("invalid data size: %d", len(data))
	}
	pk := make([]byte, ed25519.PublicKeySize)
	copy(pk, data)
	hash := make([]byte, AddressHashLength)
	copy(hash, data[ed25519.PublicKeySize+1:])
	p.PublicKey = pk
	p.Address = address.NewAddress(0, data[ed25519.PublicKeySize], hash)
	return nil
}

// String returns the string representation of the participant as [address]:[public key hex].
func (p Participant) String() string {
	return p.AddressString() + ":" + p.PublicKeyString()
}

func (p Participant) Equal(other *Participant) bool {
	if other == nil {
		return false
	}
	return SameAddress(p.Address, other.Address) && p.PublicKey.Equal(other.PublicKey)
}

func (p Participant) AddressString() string {
	if p.Address == nil {
		return ""
	}
	return p.Address.String()
}

func (p Participant) PublicKeyString() string {
	return hex.EncodeToString(p.PublicKey)
}

// SameAddress compares workchain and account id, ignoring flags.
func SameAddress(a, b *address.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Workchain() == b.Workchain() && bytes.Equal(a.Data(), b.Data())
}

// ParseAddress parses a user friendly or raw address.
func ParseAddress(s string) (*address.Address, error) {
	if addr, err := address.ParseAddr(s); err == nil {
		return addr, nil
	}
	addr, err := address.ParseRawAddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}
