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

package wire

import (
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// OneSignature wraps body for operations that a single party may submit.
// Layout: op, isA bit, signature, body bits and refs.
func OneSignature(op uint32, isA bool, signature []byte, body *cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(op), OpBits); err != nil {
		return nil, err
	}
	if err := storeBool(b, isA); err != nil {
		return nil, err
	}
	if err := storeSignature(b, signature); err != nil {
		return nil, err
	}
	if err := storeInline(b, body); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

// TwoSignature wraps body for operations both parties sign. The signatures
// are placed in separate reference cells ahead of the body.
func TwoSignature(op uint32, sigA, sigB []byte, body *cell.Cell) (*cell.Cell, error) {
	b := cell.BeginCell()
	if err := storeUint(b, uint64(op), OpBits); err != nil {
		return nil, err
	}
	for _, sig := range [][]byte{sigA, sigB} {
		sb := cell.BeginCell()
		if err := storeSignature(sb, sig); err != nil {
			return nil, err
		}
		if err := storeRef(b, sb.EndCell()); err != nil {
			return nil, err
		}
	}
	if err := storeInline(b, body); err != nil {
		return nil, err
	}
	return b.EndCell(), nil
}

// ParsedTwoSignature is the decoded form of a two-signature envelope.
type ParsedTwoSignature struct {
	Op         uint32
	SignatureA []byte
	SignatureB []byte
	Body       *cell.Cell
}

// ParseTwoSignature splits an envelope built by TwoSignature. Body is
// rebuilt from the remaining bits and refs, so its hash equals the hash of
// the cell that was signed.
func ParseTwoSignature(c *cell.Cell) (ParsedTwoSignature, error) {
	s := c.BeginParse()
	op, err := s.LoadUInt(OpBits)
	if err != nil {
		return ParsedTwoSignature{}, err
	}
	sigs := make([][]byte, 2)
	for i := range sigs {
		ref, err := s.LoadRef()
		if err != nil {
			return ParsedTwoSignature{}, err
		}
		if sigs[i], err = ref.LoadSlice(SignatureBits); err != nil {
			return ParsedTwoSignature{}, err
		}
	}
	body, err := s.ToCell()
	if err != nil {
		return ParsedTwoSignature{}, err
	}
	return ParsedTwoSignature{
		Op:         uint32(op),
		SignatureA: sigs[0],
		SignatureB: sigs[1],
		Body:       body,
	}, nil
}

// ParsedOneSignature is the decoded form of a one-signature envelope.
type ParsedOneSignature struct {
	Op        uint32
	IsA       bool
	Signature []byte
	Body      *cell.Cell
}

// ParseOneSignature splits an envelope built by OneSignature.
func ParseOneSignature(c *cell.Cell) (ParsedOneSignature, error) {
	s := c.BeginParse()
	op, err := s.LoadUInt(OpBits)
	if err != nil {
		return ParsedOneSignature{}, err
	}
	isA, err := s.LoadBoolBit()
	if err != nil {
		return ParsedOneSignature{}, err
	}
	sig, err := s.LoadSlice(SignatureBits)
	if err != nil {
		return ParsedOneSignature{}, err
	}
	body, err := s.ToCell()
	if err != nil {
		return ParsedOneSignature{}, err
	}
	return ParsedOneSignature{Op: uint32(op), IsA: isA, Signature: sig, Body: body}, nil
}
