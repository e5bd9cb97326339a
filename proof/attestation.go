package proof

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/tolelom/tolchallenge/crypto"
)

// receiptDomain separates receipt signatures from transaction and block
// signatures made with the same key type.
const receiptDomain = "tolchallenge/receipt/v1"

func receiptMessage(imageID, journalDigest Digest) []byte {
	msg := make([]byte, 0, len(receiptDomain)+64)
	msg = append(msg, receiptDomain...)
	msg = append(msg, imageID[:]...)
	msg = append(msg, journalDigest[:]...)
	return msg
}

// AttestationVerifier accepts seals that are ed25519 signatures, by one of a
// fixed set of trusted provers, over (image id, journal digest). The prover
// service runs the guest program off chain and signs its receipt.
type AttestationVerifier struct {
	provers []crypto.PublicKey
}

// NewAttestationVerifier trusts the given hex-encoded prover public keys.
func NewAttestationVerifier(proverKeys ...string) (*AttestationVerifier, error) {
	if len(proverKeys) == 0 {
		return nil, errors.New("proof: at least one prover key required")
	}
	v := &AttestationVerifier{}
	for _, k := range proverKeys {
		pub, err := crypto.PubKeyFromHex(k)
		if err != nil {
			return nil, fmt.Errorf("proof: prover key: %w", err)
		}
		v.provers = append(v.provers, pub)
	}
	return v, nil
}

// Verify implements Verifier.
func (v *AttestationVerifier) Verify(seal []byte, imageID, journalDigest Digest) error {
	if len(seal) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSeal)
	}
	msg := receiptMessage(imageID, journalDigest)
	for _, pub := range v.provers {
		if crypto.VerifyRaw(pub, msg, seal) == nil {
			return nil
		}
	}
	return ErrInvalidSeal
}

// Prover runs the guest check locally and signs receipts for accepted
// inputs. It is the off-chain counterpart of AttestationVerifier.
type Prover struct {
	priv    crypto.PrivateKey
	imageID Digest
	secret  *uint256.Int
}

// NewProver creates a Prover for the guest identified by imageID whose
// embedded secret is secret.
func NewProver(priv crypto.PrivateKey, imageID Digest, secret *uint256.Int) *Prover {
	return &Prover{priv: priv, imageID: imageID, secret: new(uint256.Int).Set(secret)}
}

// PublicKey returns the hex key verifiers must trust.
func (p *Prover) PublicKey() string {
	return p.priv.Public().Hex()
}

// Prove returns the seal and journal digest for input, or an error when the
// guest assertion fails.
func (p *Prover) Prove(input *uint256.Int) ([]byte, Digest, error) {
	if !input.Eq(p.secret) {
		return nil, Digest{}, errors.New("proof: guest rejected input")
	}
	digest := InputDigest(input)
	return Attest(p.priv, p.imageID, digest), digest, nil
}

// Attest signs a receipt for (imageID, journalDigest) without running the
// guest.
func Attest(priv crypto.PrivateKey, imageID, journalDigest Digest) []byte {
	return crypto.SignRaw(priv, receiptMessage(imageID, journalDigest))
}
