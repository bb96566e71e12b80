package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/xssnick/tonutils-go/tvm/cell"
	"perun.network/go-perun/wallet"

	"perun.network/perun-ton-backend/wallet/types"
)

const SignatureLength = ed25519.SignatureSize

var ErrSignatureEncoding = errors.New("malformed signature")

type backend struct{}

var Backend = backend{}

func (b backend) DecodeSig(reader io.Reader) (wallet.Sig, error) {
	sig := make([]byte, SignatureLength)
	if _, err := io.ReadFull(reader, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

func (b backend) VerifySignature(msg []byte, sig wallet.Sig, p *types.Participant) (bool, error) {
	if p == nil {
		return false, errors.New("missing participant")
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errors.New("invalid signature size")
	}
	if len(p.PublicKey) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}
	return ed25519.Verify(p.PublicKey, msg, sig), nil
}

// DecodeSigHex decodes a hex signature as clients submit them. It must be
// exactly SignatureLength bytes.
func DecodeSigHex(s string) (wallet.Sig, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureEncoding, err)
	}
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrSignatureEncoding, len(raw))
	}
	return Backend.DecodeSig(bytes.NewReader(raw))
}

// VerifyCell reports whether sig is pub's signature over the hash of c.
// Malformed keys and signatures yield false.
func VerifyCell(pub ed25519.PublicKey, c *cell.Cell, sig []byte) bool {
	if c == nil {
		return false
	}
	ok, err := Backend.VerifySignature(c.Hash(), sig, &types.Participant{PublicKey: pub})
	return err == nil && ok
}

// ZeroSignature is the placeholder for a signature the counterparty has not
// provided yet.
func ZeroSignature() wallet.Sig {
	return make([]byte, SignatureLength)
}
