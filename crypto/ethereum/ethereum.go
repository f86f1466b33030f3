// Package ethereum holds the ledger signing credential used by the isolated
// finalizer process.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/antonymartiz/PrivateVoting/util"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrNoSigningKey is returned when no signing key is configured.
var ErrNoSigningKey = errors.New("no signing key")

// SignKeys represents an ECDSA pair of keys for signing ledger transactions.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty SignKeys.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate generates a new random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a hex encoded private key, with or without 0x prefix.
// Surrounding quotes and whitespace (as found in .env files) are ignored.
func (k *SignKeys) AddHexKey(privHex string) error {
	privHex = util.TrimHex(strings.Trim(strings.TrimSpace(privHex), `"'`))
	if privHex == "" {
		return ErrNoSigningKey
	}
	key, err := ethcrypto.HexToECDSA(privHex)
	if err != nil {
		return fmt.Errorf("invalid signing key: %w", err)
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// PrivateKey returns the ECDSA private key.
func (k *SignKeys) PrivateKey() *ecdsa.PrivateKey {
	return &k.Private
}

// Address returns the Ethereum address of the key pair.
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// LoadSignKeys loads the signing credential, first from the file at path (if
// not empty) and then from the hex value of the given environment variable.
func LoadSignKeys(path, envVar string) (*SignKeys, error) {
	var raw string
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, path)
			}
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		raw = string(data)
	case envVar != "":
		raw = os.Getenv(envVar)
	}
	k := NewSignKeys()
	if err := k.AddHexKey(raw); err != nil {
		return nil, err
	}
	return k, nil
}

// HexKey returns the hex encoding of a raw private key, used by tests and
// tooling that write credential files.
func HexKey(k *SignKeys) string {
	return hex.EncodeToString(ethcrypto.FromECDSA(&k.Private))
}

// HasSignKeys reports whether a signing credential is configured, without
// reading it: either the file at path exists or envVar is not empty.
func HasSignKeys(path, envVar string) bool {
	if path != "" {
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	}
	return envVar != "" && strings.TrimSpace(os.Getenv(envVar)) != ""
}
