package keystore

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test mnemonic (DO NOT use in production).
const testMnemonic = "tag volcano eight thank tide danger coast health above argue embrace heavy"

func TestFromMnemonic_KnownAddress(t *testing.T) {
	s, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947"), s.Address())

	other, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other.Address())
}

func TestFromMnemonic_Deterministic(t *testing.T) {
	a, err := FromMnemonic(testMnemonic, DefaultHDPath)
	require.NoError(t, err)
	b, err := FromMnemonic("  "+testMnemonic+"\n", DefaultHDPath)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	digest := crypto.Keccak256([]byte("test message"))
	sigA, err := a.Sign(digest)
	require.NoError(t, err)
	sigB, err := b.Sign(digest)
	require.NoError(t, err)
	assert.Equal(t, sigA, sigB, "RFC 6979 signatures are deterministic")
}

func TestFromMnemonic_Invalid(t *testing.T) {
	_, err := FromMnemonic("not a mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = FromMnemonic(testMnemonic, "m/not/a/path")
	assert.ErrorIs(t, err, ErrInvalidKey)

	fresh, err := hdwallet.NewMnemonic(128)
	require.NoError(t, err)
	s, err := FromMnemonic(fresh, "")
	require.NoError(t, err)
	ref, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.NotEqual(t, ref.Address(), s.Address())
}

func TestSignAndRecover(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	digest := crypto.Keccak256([]byte("payload"))
	sig, err := s.Sign(digest)
	require.NoError(t, err)
	assert.Len(t, sig, 65)

	addr, err := Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	other := crypto.Keccak256([]byte("other"))
	addr, err = Recover(other, sig)
	if err == nil {
		assert.NotEqual(t, s.Address(), addr)
	}

	_, err = s.Sign([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidDigest)
	_, err = Recover(digest, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLoad(t *testing.T) {
	_, err := Load("", "", "")
	assert.ErrorIs(t, err, ErrNoKey)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	s, err := Load(hexKey, testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address(), "private key wins over mnemonic")

	_, err = Load("zz", "", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
