package common

import (
	"os"
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestValidateStandaloneOracle(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateStandaloneOracle(cfg))

	cfg.Store = "postgres"
	require.NoError(t, ValidateStandaloneOracle(cfg))

	// BGV keys never leave the sealing process; a standalone oracle would
	// leave every request pending forever, so the config is refused.
	cfg.Seal = "bgv"
	err := ValidateStandaloneOracle(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedded oracle")
}

func TestLoadOrGenerateSigningKey(t *testing.T) {
	const hexKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	key, err := LoadOrGenerateSigningKey(hexKey)
	require.NoError(t, err)
	want, err := ethcrypto.HexToECDSA(hexKey)
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(key.PublicKey))

	// 0x prefix is accepted.
	key2, err := LoadOrGenerateSigningKey("0x" + hexKey)
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(key2.PublicKey))

	// Empty generates a fresh key.
	generated, err := LoadOrGenerateSigningKey("")
	require.NoError(t, err)
	require.NotEqual(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(generated.PublicKey))

	_, err = LoadOrGenerateSigningKey("not-a-key")
	require.Error(t, err)
}

func TestResolveAddress(t *testing.T) {
	fallback := ethcommon.HexToAddress("0x00000000000000000000000000000000000000AD")

	addr, err := ResolveAddress("", fallback)
	require.NoError(t, err)
	require.Equal(t, fallback, addr)

	addr, err = ResolveAddress("0x1111111111111111111111111111111111111111", fallback)
	require.NoError(t, err)
	require.Equal(t, ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"), addr)

	_, err = ResolveAddress("nonsense", fallback)
	require.Error(t, err)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":4001"
seal: bgv
ledger:
  max_batch_size: 10
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":4001", cfg.HTTPAddr)
	require.Equal(t, "bgv", cfg.Seal)
	require.Equal(t, 10, cfg.Ledger.MaxBatchSize)

	// Untouched fields keep their defaults.
	require.Equal(t, "memory", cfg.Store)
	require.True(t, cfg.Oracle.Embedded)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
