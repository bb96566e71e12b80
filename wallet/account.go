package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/wallet"

	"perun.network/perun-ton-backend/wallet/types"
)

// SeedLength is the length of the seed an account key is derived from.
const SeedLength = ed25519.SeedSize

type Account struct {
	// privateKey is the private key of the account.
	privateKey ed25519.PrivateKey
}

// NewAccountFromSeed derives the account key from a 32 byte seed.
func NewAccountFromSeed(seed []byte) (*Account, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return &Account{privateKey: ed25519.NewKeyFromSeed(seed)}, nil
}

func NewRandomAccount(rng io.Reader) (*Account, error) {
	_, s, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, err
	}
	return &Account{privateKey: s}, nil
}

func (a Account) PublicKey() ed25519.PublicKey {
	return a.privateKey.Public().(ed25519.PublicKey)
}

// Participant returns the participant this account signs for when it
// withdraws to addr.
func (a Account) Participant(addr *address.Address) *types.Participant {
	return types.NewParticipant(addr, a.PublicKey())
}

func (a Account) SignData(data []byte) (wallet.Sig, error) {
	if len(a.privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return ed25519.Sign(a.privateKey, data), nil
}

// SignCell signs the representation hash of c.
func (a Account) SignCell(c *cell.Cell) (wallet.Sig, error) {
	if c == nil {
		return nil, errors.New("nothing to sign")
	}
	return a.SignData(c.Hash())
}
