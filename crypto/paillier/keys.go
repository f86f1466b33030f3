package paillier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/antonymartiz/PrivateVoting/types"
)

// ErrKeyFileNotFound is returned when the key file does not exist.
var ErrKeyFileNotFound = errors.New("key file not found")

// KeyFile is the persisted keypair. Every number is a decimal string.
type KeyFile struct {
	PublicKey  *PublicKeyFile  `json:"publicKey"`
	PrivateKey *PrivateKeyFile `json:"privateKey,omitempty"`
}

// PublicKeyFile is the disclosable half of the key file.
type PublicKeyFile struct {
	N *types.BigInt `json:"n"`
	G *types.BigInt `json:"g"`
}

// PrivateKeyFile is the secret half of the key file.
type PrivateKeyFile struct {
	Lambda *types.BigInt `json:"lambda"`
	Mu     *types.BigInt `json:"mu"`
}

// publicOnly is used to decode the key file without materialising the
// private key fields.
type publicOnly struct {
	PublicKey *PublicKeyFile `json:"publicKey"`
}

// Key returns the public key described by the file.
func (p *PublicKeyFile) Key() (*PublicKey, error) {
	if p == nil || p.N == nil || p.G == nil {
		return nil, fmt.Errorf("incomplete public key")
	}
	return NewPublicKey(p.N.MathBigInt(), p.G.MathBigInt())
}

// NewPublicKeyFile converts pub to its serialisable form.
func NewPublicKeyFile(pub *PublicKey) *PublicKeyFile {
	return &PublicKeyFile{
		N: types.NewBigInt(pub.N),
		G: types.NewBigInt(pub.G),
	}
}

// NewKeyFile converts priv to its serialisable form.
func NewKeyFile(priv *PrivateKey) *KeyFile {
	return &KeyFile{
		PublicKey: NewPublicKeyFile(&priv.PublicKey),
		PrivateKey: &PrivateKeyFile{
			Lambda: types.NewBigInt(priv.Lambda),
			Mu:     types.NewBigInt(priv.Mu),
		},
	}
}

// KeyFileExists reports whether a key file is present at path, without
// reading it.
func KeyFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadPublicKeyFile decodes only the public portion of the key file.
func ReadPublicKeyFile(path string) (*PublicKeyFile, error) {
	f, err := openKeyFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var kf publicOnly
	if err := json.NewDecoder(f).Decode(&kf); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if kf.PublicKey == nil {
		return nil, fmt.Errorf("key file has no public key")
	}
	return kf.PublicKey, nil
}

// LoadPublicKey reads and validates the public key from the key file.
func LoadPublicKey(path string) (*PublicKey, error) {
	pkf, err := ReadPublicKeyFile(path)
	if err != nil {
		return nil, err
	}
	return pkf.Key()
}

// LoadPrivateKey reads the full keypair from the key file. Only the isolated
// finalizer process calls it.
func LoadPrivateKey(path string) (*PrivateKey, error) {
	f, err := openKeyFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeKeyFile(f)
}

// DecodeKeyFile parses a full key file from r.
func DecodeKeyFile(r io.Reader) (*PrivateKey, error) {
	var kf KeyFile
	if err := json.NewDecoder(r).Decode(&kf); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	pub, err := kf.PublicKey.Key()
	if err != nil {
		return nil, err
	}
	if kf.PrivateKey == nil || kf.PrivateKey.Lambda == nil || kf.PrivateKey.Mu == nil {
		return nil, fmt.Errorf("key file has no private key")
	}
	return NewPrivateKey(pub, kf.PrivateKey.Lambda.MathBigInt(), kf.PrivateKey.Mu.MathBigInt())
}

// WriteKeyFile stores kf at path with owner-only permissions, creating the
// parent directory if needed.
func WriteKeyFile(path string, kf *KeyFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func openKeyFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	return f, nil
}
