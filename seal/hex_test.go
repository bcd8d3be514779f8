package seal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loserner/CipherTrace/ledger"
)

func TestHexSealer_TransactionRoundTrip(t *testing.T) {
	s := NewHexSealer()
	tx := ledger.TransactionData{Amount: 12.5, GasUsed: 21000, Timestamp: time.Now().UnixMilli()}

	handle, err := s.SealTransaction(tx)
	require.NoError(t, err)
	require.True(t, len(handle) > 2 && handle[:2] == "0x")

	got, err := s.RevealTransaction(handle)
	require.NoError(t, err)
	require.Equal(t, tx, got)
}

func TestHexSealer_ScoreRoundTrip(t *testing.T) {
	s := NewHexSealer()

	for _, score := range []float64{0, 27.5, 100} {
		handle, err := s.SealScore(score)
		require.NoError(t, err)

		got, err := s.RevealScore(handle)
		require.NoError(t, err)
		require.Equal(t, score, got)
	}
}

func TestHexSealer_RejectsMalformedHandles(t *testing.T) {
	s := NewHexSealer()

	for _, handle := range []string{"", "0x", "0xzz", "not hex at all"} {
		_, err := s.RevealTransaction(handle)
		require.ErrorIs(t, err, ErrBadHandle, "handle %q", handle)

		_, err = s.RevealScore(handle)
		require.ErrorIs(t, err, ErrBadHandle, "handle %q", handle)
	}
}

func TestHexSealer_ScoreHandleIsNotATransaction(t *testing.T) {
	s := NewHexSealer()

	handle, err := s.SealScore(42)
	require.NoError(t, err)

	_, err = s.RevealTransaction(handle)
	require.ErrorIs(t, err, ErrBadHandle)
}
