package seal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/loserner/CipherTrace/ledger"
)

// HexSealer is the simulation codec: JSON re-encoded as 0x-prefixed hex.
// Reversible by anyone; use it only where the sealed form merely needs to be
// opaque to the bookkeeping layer, never for confidentiality.
type HexSealer struct{}

// NewHexSealer creates the simulation sealer.
func NewHexSealer() *HexSealer { return &HexSealer{} }

func (s *HexSealer) SealTransaction(tx ledger.TransactionData) (string, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("encoding transaction: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func (s *HexSealer) RevealTransaction(handle string) (ledger.TransactionData, error) {
	var tx ledger.TransactionData
	raw, err := decodeHex(handle)
	if err != nil {
		return tx, err
	}
	if err := json.Unmarshal(raw, &tx); err != nil {
		return tx, fmt.Errorf("%w: not a sealed transaction", ErrBadHandle)
	}
	return tx, nil
}

func (s *HexSealer) SealScore(score float64) (string, error) {
	raw := strconv.FormatFloat(score, 'f', -1, 64)
	return "0x" + hex.EncodeToString([]byte(raw)), nil
}

func (s *HexSealer) RevealScore(handle string) (float64, error) {
	raw, err := decodeHex(handle)
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: not a sealed score", ErrBadHandle)
	}
	return score, nil
}

func decodeHex(handle string) ([]byte, error) {
	trimmed := strings.TrimPrefix(handle, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrBadHandle)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandle, err)
	}
	return raw, nil
}
