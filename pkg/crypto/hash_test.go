package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/kgxledger/kgxledger/pkg/types"
)

func hexToHash(t *testing.T, s string) types.Hash {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	var h types.Hash
	copy(h[:], b)
	return h
}

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hash(tt.input)
			want := hexToHash(t, tt.want)
			if got != want {
				t.Errorf("Hash(%q) = %x, want %x", tt.input, got, want)
			}
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	data := []byte("deterministic test input")
	h1 := Hash(data)
	h2 := Hash(data)
	if h1 != h2 {
		t.Errorf("Hash is not deterministic: %x != %x", h1, h2)
	}
}

func TestHash_DifferentInputs(t *testing.T) {
	h1 := Hash([]byte("input A"))
	h2 := Hash([]byte("input B"))
	if h1 == h2 {
		t.Error("different inputs produced the same hash")
	}
}

func TestCanonicalHash_MatchesStdlibSHA256(t *testing.T) {
	data := []byte("block bytes")
	got := CanonicalHash(data)
	want := sha256.Sum256(data)
	if got != types.Hash(want) {
		t.Errorf("CanonicalHash(%q) = %x, want %x", data, got, want)
	}
}

func TestCanonicalHash_Deterministic(t *testing.T) {
	data := []byte("deterministic block bytes")
	if CanonicalHash(data) != CanonicalHash(data) {
		t.Error("CanonicalHash is not deterministic")
	}
}

func TestCanonicalHash_DiffersFromHash(t *testing.T) {
	data := []byte("same input, different algorithm")
	if CanonicalHash(data) == Hash(data) {
		t.Error("CanonicalHash (SHA-256) should not collide with Hash (BLAKE3) by construction")
	}
}

func TestAddressFromPubKey_Deterministic(t *testing.T) {
	pub := []byte{0x02, 0x01, 0x02, 0x03}
	a1 := AddressFromPubKey(pub)
	a2 := AddressFromPubKey(pub)
	if a1 != a2 {
		t.Error("AddressFromPubKey is not deterministic")
	}
}

func TestAddressFromPubKey_DifferentKeys(t *testing.T) {
	a1 := AddressFromPubKey([]byte{0x02, 0x01})
	a2 := AddressFromPubKey([]byte{0x02, 0x02})
	if a1 == a2 {
		t.Error("different public keys produced the same address")
	}
}
