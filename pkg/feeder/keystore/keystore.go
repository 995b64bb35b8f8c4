// Package keystore provides the authority signer used to authorize feed
// commands. Keys come from a hex private key or a BIP39 mnemonic.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultHDPath is the first account of the standard secp256k1 derivation.
const DefaultHDPath = "m/44'/60'/0'/0/0"

var (
	// ErrNoKey indicates that neither a private key nor a mnemonic was configured.
	ErrNoKey = errors.New("no signing key configured")
	// ErrInvalidKey indicates an unparsable private key or mnemonic.
	ErrInvalidKey = errors.New("invalid signing key")
	// ErrInvalidDigest indicates a digest that is not 32 bytes long.
	ErrInvalidDigest = errors.New("digest must be 32 bytes")
	// ErrInvalidSignature indicates a signature from which no key can be recovered.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer is the authority capability. The core never stores key material.
type Signer interface {
	Address() common.Address
	Sign(digest []byte) ([]byte, error)
}

// PrivateKeySigner signs with an in-memory secp256k1 key.
type PrivateKeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*PrivateKeySigner)(nil)

// NewPrivateKeySigner wraps key.
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// FromHex parses a hex private key, with or without 0x prefix.
func FromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewPrivateKeySigner(key), nil
}

// FromMnemonic derives the key at hdPath (DefaultHDPath when empty).
func FromMnemonic(mnemonic, hdPath string) (*PrivateKeySigner, error) {
	if hdPath == "" {
		hdPath = DefaultHDPath
	}
	wallet, err := hdwallet.NewFromMnemonic(strings.TrimSpace(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	path, err := hdwallet.ParseDerivationPath(hdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: hd path %q: %v", ErrInvalidKey, hdPath, err)
	}
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: derive %s: %v", ErrInvalidKey, hdPath, err)
	}
	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewPrivateKeySigner(key), nil
}

// Load picks the private key when set, else the mnemonic.
func Load(privateKey, mnemonic, hdPath string) (*PrivateKeySigner, error) {
	switch {
	case privateKey != "":
		return FromHex(privateKey)
	case mnemonic != "":
		return FromMnemonic(mnemonic, hdPath)
	default:
		return nil, ErrNoKey
	}
}

// Generate creates a signer with a fresh random key.
func Generate() (*PrivateKeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(key), nil
}

// Address returns the authority address of the key.
func (s *PrivateKeySigner) Address() common.Address {
	return s.addr
}

// Sign returns a 65-byte recoverable signature over digest.
func (s *PrivateKeySigner) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDigest, len(digest))
	}
	return crypto.Sign(digest, s.key)
}

// Recover returns the address that produced sig over digest.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("%w: got %d", ErrInvalidDigest, len(digest))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
