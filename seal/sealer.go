package seal

import (
	"errors"

	"github.com/loserner/CipherTrace/ledger"
)

// ErrBadHandle indicates a handle that the sealer cannot reveal: wrong
// encoding, wrong key, or truncated ciphertext.
var ErrBadHandle = errors.New("bad sealed handle")

// Sealer is the pluggable encryption/decryption capability. Handles are
// printable strings safe to store and ship over JSON.
type Sealer interface {
	// SealTransaction seals transaction plaintext into an opaque handle.
	SealTransaction(tx ledger.TransactionData) (string, error)
	// RevealTransaction recovers the plaintext from a sealed handle.
	RevealTransaction(handle string) (ledger.TransactionData, error)

	// SealScore seals an analysis score into an opaque result handle.
	SealScore(score float64) (string, error)
	// RevealScore recovers a score from a sealed result handle.
	RevealScore(handle string) (float64, error)
}
