package deploy

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testAddrs = ContractAddresses{
	TransactionAnalyzer: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	PrivateAnalyzer:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
	FHEVMInterface:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
}

func TestRecord_WriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	deployer := common.HexToAddress("0x00000000000000000000000000000000000000A1")

	rec := NewRecord(Network{ChainID: 31337, Name: "localhost"}, deployer, testAddrs)
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.Timestamp.IsZero())

	path, err := rec.Write(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "localhost-31337.json"), path)

	loaded, err := LoadRecord(path)
	require.NoError(t, err)
	require.Equal(t, rec.ID, loaded.ID)
	require.Equal(t, rec.Network, loaded.Network)
	require.Equal(t, deployer, loaded.Deployer)

	addrs, err := loaded.Addresses()
	require.NoError(t, err)
	require.Equal(t, testAddrs, addrs)
}

func TestRecord_DistinctIDs(t *testing.T) {
	a := NewRecord(Network{ChainID: 1, Name: "mainnet"}, common.Address{}, testAddrs)
	b := NewRecord(Network{ChainID: 1, Name: "mainnet"}, common.Address{}, testAddrs)
	require.NotEqual(t, a.ID, b.ID)
}

func TestRecord_AddressesValidation(t *testing.T) {
	rec := NewRecord(Network{ChainID: 1, Name: "mainnet"}, common.Address{}, testAddrs)

	delete(rec.Contracts, "PrivateAnalyzer")
	_, err := rec.Addresses()
	require.ErrorContains(t, err, "PrivateAnalyzer")

	rec.Contracts["PrivateAnalyzer"] = "not-an-address"
	_, err = rec.Addresses()
	require.ErrorContains(t, err, "invalid address")
}

func TestLoadRecord_Missing(t *testing.T) {
	_, err := LoadRecord(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestAddressBook_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "addresses.json")

	book := AddressBook{
		31337: testAddrs,
		11155111: {
			TransactionAnalyzer: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		},
	}
	require.NoError(t, WriteAddressBook(book, path))

	loaded, err := LoadAddressBook(path)
	require.NoError(t, err)
	require.Equal(t, book, loaded)
}
