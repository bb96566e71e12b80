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
	"errors"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

var (
	// ErrEncoding is returned for values that have no valid wire representation,
	// e.g. keys or signatures of the wrong length or negative amounts.
	ErrEncoding = errors.New("encoding error")
	// ErrCapacityExceeded is returned when a structure does not fit into a cell.
	ErrCapacityExceeded = errors.New("cell capacity exceeded")
	// ErrUnexpectedTag is returned when a decoded structure starts with a foreign tag.
	ErrUnexpectedTag = errors.New("unexpected tag")
)

func storeUint(b *cell.Builder, v uint64, bits uint) error {
	if err := ensureBits(b, bits); err != nil {
		return err
	}
	if bits < 64 && v>>bits != 0 {
		return fmt.Errorf("%w: value %d does not fit into %d bits", ErrEncoding, v, bits)
	}
	return capacity(b.StoreUInt(v, bits))
}

func storeBool(b *cell.Builder, v bool) error {
	if err := ensureBits(b, 1); err != nil {
		return err
	}
	return capacity(b.StoreBoolBit(v))
}

func storeChannelID(b *cell.Builder, id *big.Int) error {
	if id == nil || id.Sign() < 0 || id.BitLen() > ChannelIDBits {
		return fmt.Errorf("%w: channel id must be an unsigned 128 bit integer", ErrEncoding)
	}
	if err := ensureBits(b, ChannelIDBits); err != nil {
		return err
	}
	return capacity(b.StoreBigUInt(id, ChannelIDBits))
}

// storeCoins writes a variable length amount. A nil amount is written as zero.
func storeCoins(b *cell.Builder, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %s", ErrEncoding, v)
	}
	n := (v.BitLen() + 7) / 8
	if n > maxCoinsBytes {
		return fmt.Errorf("%w: amount %s exceeds %d bytes", ErrEncoding, v, maxCoinsBytes)
	}
	if err := ensureBits(b, uint(4+n*8)); err != nil {
		return err
	}
	return capacity(b.StoreBigCoins(v))
}

func storePublicKey(b *cell.Builder, key []byte) error {
	if len(key) != PublicKeyLength {
		return fmt.Errorf("%w: invalid public key length %d", ErrEncoding, len(key))
	}
	if err := ensureBits(b, PublicKeyBits); err != nil {
		return err
	}
	return capacity(b.StoreSlice(key, PublicKeyBits))
}

func storeSignature(b *cell.Builder, sig []byte) error {
	if len(sig) != SignatureLength {
		return fmt.Errorf("%w: invalid signature length %d", ErrEncoding, len(sig))
	}
	if err := ensureBits(b, SignatureBits); err != nil {
		return err
	}
	return capacity(b.StoreSlice(sig, SignatureBits))
}

func storeAddr(b *cell.Builder, addr *address.Address) error {
	if addr == nil {
		return fmt.Errorf("%w: missing address", ErrEncoding)
	}
	return capacity(b.StoreAddr(addr))
}

func storeRef(b *cell.Builder, ref *cell.Cell) error {
	if ref == nil {
		return fmt.Errorf("%w: missing reference", ErrEncoding)
	}
	if b.RefsUsed() >= maxRefs {
		return fmt.Errorf("%w: more than %d references", ErrCapacityExceeded, maxRefs)
	}
	return capacity(b.StoreRef(ref))
}

// storeMaybeRef writes a presence bit followed by ref if it is non-nil.
func storeMaybeRef(b *cell.Builder, ref *cell.Cell) error {
	if ref == nil {
		return storeBool(b, false)
	}
	if b.RefsUsed() >= maxRefs {
		return fmt.Errorf("%w: more than %d references", ErrCapacityExceeded, maxRefs)
	}
	if err := storeBool(b, true); err != nil {
		return err
	}
	return capacity(b.StoreRef(ref))
}

// storeInline appends the bits and references of c to b.
func storeInline(b *cell.Builder, c *cell.Cell) error {
	if c == nil {
		return fmt.Errorf("%w: missing cell", ErrEncoding)
	}
	s := c.BeginParse()
	bits := s.BitsLeft()
	if err := ensureBits(b, bits); err != nil {
		return err
	}
	if bits > 0 {
		data, err := s.LoadSlice(bits)
		if err != nil {
			return err
		}
		if err := capacity(b.StoreSlice(data, bits)); err != nil {
			return err
		}
	}
	for s.RefsNum() > 0 {
		ref, err := s.LoadRefCell()
		if err != nil {
			return err
		}
		if err := storeRef(b, ref); err != nil {
			return err
		}
	}
	return nil
}

func ensureBits(b *cell.Builder, bits uint) error {
	if b.BitsUsed()+bits > maxCellBits {
		return fmt.Errorf("%w: %d bits do not fit", ErrCapacityExceeded, bits)
	}
	return nil
}

func capacity(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
	}
	return nil
}

func loadChannelID(s *cell.Slice) (*big.Int, error) {
	return s.LoadBigUInt(ChannelIDBits)
}

func loadTag(s *cell.Slice, want uint32) error {
	tag, err := s.LoadUInt(OpBits)
	if err != nil {
		return err
	}
	if uint32(tag) != want {
		return fmt.Errorf("%w: got %#x, want %#x", ErrUnexpectedTag, tag, want)
	}
	return nil
}

func loadMaybeRefCell(s *cell.Slice) (*cell.Cell, error) {
	present, err := s.LoadBoolBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return s.LoadRefCell()
}
