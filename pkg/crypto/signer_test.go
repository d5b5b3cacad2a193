package crypto

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if !IsValidAddress(signer.Address()) {
		t.Errorf("address %q is not a valid ledger address", signer.Address())
	}
	if !strings.HasPrefix(signer.Address(), "0x") {
		t.Errorf("address %q missing 0x prefix", signer.Address())
	}

	if len(signer.SeedHex()) != 64 {
		t.Errorf("seed hex length = %d, want 64", len(signer.SeedHex()))
	}
	if len(signer.PublicKeyHex()) != 64 {
		t.Errorf("public key hex length = %d, want 64", len(signer.PublicKeyHex()))
	}
}

func TestFromSeedHex(t *testing.T) {
	signer1, _ := GenerateKey()
	seed := signer1.SeedHex()

	for _, in := range []string{seed, "0x" + seed} {
		signer2, err := FromSeedHex(in)
		if err != nil {
			t.Fatalf("failed to load key: %v", err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address(), signer1.Address())
		}
	}

	if _, err := FromSeedHex("0x1234"); err == nil {
		t.Error("short seed should be rejected")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	tx := []byte(`{"sender":"0xme","commands":[]}`)

	sig, err := signer.Sign(tx)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	addr, ok := VerifySignature(tx, sig)
	if !ok {
		t.Fatal("signature verification failed")
	}
	if addr != signer.Address() {
		t.Errorf("recovered address = %s, want %s", addr, signer.Address())
	}

	if _, ok := VerifySignature([]byte("tampered"), sig); ok {
		t.Error("signature should not verify for different bytes")
	}
	if _, ok := VerifySignature(tx, "not-base64!"); ok {
		t.Error("garbage signature should not verify")
	}

	if _, err := signer.Sign(nil); err == nil {
		t.Error("signing empty payload should fail")
	}
}

func TestAddressHelpers(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		addr string
		want bool
	}{
		{valid, true},
		{strings.Repeat("AB", 32), true},
		{"0x1234", false},
		{"0x" + strings.Repeat("zz", 32), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidAddress(tt.addr); got != tt.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}

	if !SameAddress(valid, strings.ToUpper(strings.TrimPrefix(valid, "0x"))) {
		t.Error("SameAddress should ignore case and prefix")
	}
	if SameAddress("", "") {
		t.Error("empty addresses never match")
	}
}
