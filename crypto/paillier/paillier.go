// Package paillier adapts github.com/roasbeef/go-go-gadget-paillier to the
// additively homomorphic contract the tally pipeline relies on: ciphertexts
// are integers in [1, n^2), multiplying two of them modulo n^2 yields the
// encryption of the sum of their plaintexts modulo n, and 1 is the identity.
//
// The library keeps its private key as unexported CRT factors, so the
// private half here is the (lambda, mu) pair of the key file and decryption
// is m = L(c^lambda mod n^2) * mu mod n with L(u) = (u-1)/n.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	gpaillier "github.com/roasbeef/go-go-gadget-paillier"
)

// MinModulusBits is the smallest modulus size accepted. The modulus must be
// larger than 2^256 so that two 128-bit counters fit in one plaintext.
const MinModulusBits = 257

// DefaultKeyBits is the modulus size used by the key generation tool.
const DefaultKeyBits = 2048

var (
	// ErrInvalidCiphertext is returned when a value is outside (0, n^2).
	ErrInvalidCiphertext = errors.New("ciphertext out of range")
	// ErrInvalidPlaintext is returned when a value is outside [0, n).
	ErrInvalidPlaintext = errors.New("plaintext out of range")
	// ErrKeyMismatch is returned when lambda and mu do not belong to the
	// public key they are paired with.
	ErrKeyMismatch = errors.New("private key does not match public key")

	one = big.NewInt(1)
)

// PublicKey is the public half of a keypair: n, g and the cached n^2.
type PublicKey = gpaillier.PublicKey

// PrivateKey holds lambda and mu next to the public key.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int
}

// GenerateKey creates a new keypair with a modulus of the given size and
// g = n+1.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < MinModulusBits {
		return nil, fmt.Errorf("modulus of %d bits is too small, need at least %d", bits, MinModulusBits)
	}
	if random == nil {
		random = rand.Reader
	}
	for {
		p, err := rand.Prime(random, (bits+1)/2)
		if err != nil {
			return nil, fmt.Errorf("generate prime: %w", err)
		}
		q, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() < MinModulusBits {
			continue
		}
		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		phi := new(big.Int).Mul(pm1, qm1)
		if new(big.Int).GCD(nil, nil, n, phi).Cmp(one) != 0 {
			continue
		}
		// lambda = lcm(p-1, q-1)
		lambda := phi.Div(phi, new(big.Int).GCD(nil, nil, pm1, qm1))

		pub, err := NewPublicKey(n, new(big.Int).Add(n, one))
		if err != nil {
			return nil, err
		}
		mu, err := muFor(pub, lambda)
		if err != nil {
			continue
		}
		return &PrivateKey{PublicKey: *pub, Lambda: lambda, Mu: mu}, nil
	}
}

// muFor returns L(g^lambda mod n^2)^-1 mod n.
func muFor(pub *PublicKey, lambda *big.Int) (*big.Int, error) {
	mu := new(big.Int).ModInverse(lfunc(pub, new(big.Int).Exp(pub.G, lambda, pub.NSquared)), pub.N)
	if mu == nil {
		return nil, ErrKeyMismatch
	}
	return mu, nil
}

func lfunc(pub *PublicKey, u *big.Int) *big.Int {
	l := new(big.Int).Sub(u, one)
	return l.Div(l, pub.N)
}

// NewPublicKey builds a public key from n and g, validating them.
func NewPublicKey(n, g *big.Int) (*PublicKey, error) {
	if n == nil || g == nil {
		return nil, fmt.Errorf("missing public key component")
	}
	if n.BitLen() < MinModulusBits {
		return nil, fmt.Errorf("modulus of %d bits is too small, need at least %d", n.BitLen(), MinModulusBits)
	}
	nSquared := new(big.Int).Mul(n, n)
	if g.Sign() <= 0 || g.Cmp(nSquared) >= 0 {
		return nil, fmt.Errorf("generator out of range")
	}
	return &PublicKey{
		N:        new(big.Int).Set(n),
		G:        new(big.Int).Set(g),
		NSquared: nSquared,
	}, nil
}

// NewPrivateKey builds a private key from lambda and mu on top of pub and
// checks that mu is the inverse of L(g^lambda mod n^2).
func NewPrivateKey(pub *PublicKey, lambda, mu *big.Int) (*PrivateKey, error) {
	if pub == nil {
		return nil, fmt.Errorf("missing public key")
	}
	if lambda == nil || mu == nil || lambda.Sign() <= 0 || mu.Sign() <= 0 || mu.Cmp(pub.N) >= 0 {
		return nil, fmt.Errorf("invalid private key component")
	}
	check := lfunc(pub, new(big.Int).Exp(pub.G, lambda, pub.NSquared))
	check.Mul(check, mu).Mod(check, pub.N)
	if check.Cmp(one) != 0 {
		return nil, ErrKeyMismatch
	}
	return &PrivateKey{
		PublicKey: *pub,
		Lambda:    new(big.Int).Set(lambda),
		Mu:        new(big.Int).Set(mu),
	}, nil
}

// Encrypt encrypts a plaintext in [0, n).
func Encrypt(pub *PublicKey, plaintext *big.Int) (*big.Int, error) {
	if plaintext.Sign() < 0 || plaintext.Cmp(pub.N) >= 0 {
		return nil, ErrInvalidPlaintext
	}
	// the library assumes g = n+1; keys generated elsewhere may use a
	// random generator, so fall back to the general form g^m * r^n.
	if pub.G.Cmp(new(big.Int).Add(pub.N, one)) != 0 {
		return encryptWithGenerator(pub, plaintext)
	}
	c, err := gpaillier.Encrypt(pub, plaintext.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return new(big.Int).SetBytes(c), nil
}

func encryptWithGenerator(pub *PublicKey, m *big.Int) (*big.Int, error) {
	var r *big.Int
	for {
		var err error
		if r, err = rand.Int(rand.Reader, pub.N); err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, pub.N).Cmp(one) == 0 {
			break
		}
	}
	gm := new(big.Int).Exp(pub.G, m, pub.NSquared)
	rn := new(big.Int).Exp(r, pub.N, pub.NSquared)
	return gm.Mul(gm, rn).Mod(gm, pub.NSquared), nil
}

// Decrypt recovers the plaintext of a ciphertext in (0, n^2).
func Decrypt(priv *PrivateKey, ciphertext *big.Int) (*big.Int, error) {
	if !ValidCiphertext(&priv.PublicKey, ciphertext) {
		return nil, ErrInvalidCiphertext
	}
	m := lfunc(&priv.PublicKey, new(big.Int).Exp(ciphertext, priv.Lambda, priv.NSquared))
	return m.Mul(m, priv.Mu).Mod(m, priv.N), nil
}

// Combine returns x*y mod n^2, the encryption of the sum of both plaintexts.
func Combine(pub *PublicKey, x, y *big.Int) *big.Int {
	return new(big.Int).SetBytes(gpaillier.AddCipher(pub, x.Bytes(), y.Bytes()))
}

// Identity returns the multiplicative identity, which decrypts to zero.
func Identity() *big.Int {
	return new(big.Int).Set(one)
}

// ValidCiphertext reports whether c lies in (0, n^2).
func ValidCiphertext(pub *PublicKey, c *big.Int) bool {
	return c != nil && c.Sign() > 0 && c.Cmp(pub.NSquared) < 0
}
