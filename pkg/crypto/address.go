package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"golang.org/x/crypto/blake2b"
)

// AddressHexLen is the number of hex characters in a ledger address.
const AddressHexLen = 64

// DeriveAddress computes blake2b-256(flag || pubkey) as a 0x-prefixed hex string.
func DeriveAddress(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, flagEd25519)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// IsValidAddress accepts 64 hex characters with or without a 0x prefix.
func IsValidAddress(addr string) bool {
	h := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(h) != AddressHexLen {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// NormalizeAddress lowercases addr and ensures the 0x prefix.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// SameAddress compares two addresses ignoring case and the 0x prefix.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeAddress(a) == NormalizeAddress(b)
}
