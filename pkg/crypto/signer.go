package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

const (
	// flagEd25519 prefixes ed25519 public keys and serialized signatures.
	flagEd25519 byte = 0x00

	serializedSigLen = 1 + ed25519.SignatureSize + ed25519.PublicKeySize
)

// transactionIntent marks signed bytes as a transaction (scope 0, version 0, app 0).
var transactionIntent = []byte{0, 0, 0}

// Signer manages an ed25519 key pair for signing ledger transactions.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// GenerateKey creates a new random key pair.
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(priv, pub), nil
}

// FromSeedHex creates a Signer from a hex-encoded 32-byte seed.
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromSeedHex(hexSeed string) (*Signer, error) {
	seed := common.FromHex(hexSeed)
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("failed to parse seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newSigner(priv, priv.Public().(ed25519.PublicKey)), nil
}

func newSigner(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Signer {
	return &Signer{privateKey: priv, publicKey: pub, address: DeriveAddress(pub)}
}

// Address returns the 0x-prefixed ledger address of the key.
func (s *Signer) Address() string {
	return s.address
}

// SeedHex returns the seed as hex (WITHOUT 0x prefix).
// Keep this secret; never log it.
func (s *Signer) SeedHex() string {
	return hex.EncodeToString(s.privateKey.Seed())
}

func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.publicKey)
}

// Sign signs transaction bytes and returns the base64 serialized signature
// flag || signature || public key.
func (s *Signer) Sign(txBytes []byte) (string, error) {
	if len(txBytes) == 0 {
		return "", fmt.Errorf("nothing to sign")
	}
	digest := IntentDigest(txBytes)
	sig := ed25519.Sign(s.privateKey, digest[:])

	out := make([]byte, 0, serializedSigLen)
	out = append(out, flagEd25519)
	out = append(out, sig...)
	out = append(out, s.publicKey...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// IntentDigest is the blake2b-256 hash of the transaction intent followed by txBytes.
func IntentDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

// VerifySignature checks a serialized signature against txBytes and returns
// the signer's address.
func VerifySignature(txBytes []byte, serialized string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil || len(raw) != serializedSigLen || raw[0] != flagEd25519 {
		return "", false
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	digest := IntentDigest(txBytes)
	if !ed25519.Verify(pub, digest[:], sig) {
		return "", false
	}
	return DeriveAddress(pub), true
}
