// Package crypto provides cryptographic primitives for the ledger.
package crypto

import (
	"crypto/sha256"

	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data. Used wherever the
// digest is not consensus-critical: transaction identifiers, address
// derivation. Not used for the block hash, which is pinned to SHA-256
// by the canonical block encoding (see CanonicalHash).
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// CanonicalHash computes the SHA-256 digest of the canonical byte
// encoding of a block. The block hash is the one digest in the system
// that peers must reproduce bit-for-bit, so it is pinned to SHA-256
// rather than the faster BLAKE3 used elsewhere.
func CanonicalHash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
