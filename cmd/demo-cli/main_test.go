package main

import (
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/loserner/CipherTrace/deploy"
)

func TestRunExport(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "addresses.json")

	err := runExport([]string{
		"--dir", dir,
		"--book", book,
		"--network", "localhost",
		"--chain-id", "31337",
		"--deployer", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"--analyzer", "0x1111111111111111111111111111111111111111",
		"--private-analyzer", "0x2222222222222222222222222222222222222222",
		"--fhevm-interface", "0x3333333333333333333333333333333333333333",
	})
	require.NoError(t, err)

	record, err := deploy.LoadRecord(filepath.Join(dir, "localhost-31337.json"))
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Equal(t, uint64(31337), record.Network.ChainID)
	require.Equal(t, ethcommon.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), record.Deployer)

	loaded, err := deploy.LoadAddressBook(book)
	require.NoError(t, err)
	require.Equal(t, ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"), loaded[31337].TransactionAnalyzer)

	// A second export for another chain merges into the same book.
	err = runExport([]string{
		"--dir", dir,
		"--book", book,
		"--network", "sepolia",
		"--chain-id", "11155111",
		"--deployer", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"--analyzer", "0x4444444444444444444444444444444444444444",
		"--private-analyzer", "0x5555555555555555555555555555555555555555",
		"--fhevm-interface", "0x6666666666666666666666666666666666666666",
	})
	require.NoError(t, err)

	loaded, err = deploy.LoadAddressBook(book)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"), loaded[31337].TransactionAnalyzer)
	require.Equal(t, ethcommon.HexToAddress("0x4444444444444444444444444444444444444444"), loaded[11155111].TransactionAnalyzer)
}

func TestRunExportRejectsBadAddresses(t *testing.T) {
	err := runExport([]string{
		"--dir", t.TempDir(),
		"--deployer", "nonsense",
		"--analyzer", "0x1111111111111111111111111111111111111111",
		"--private-analyzer", "0x2222222222222222222222222222222222222222",
		"--fhevm-interface", "0x3333333333333333333333333333333333333333",
	})
	require.Error(t, err)
}
