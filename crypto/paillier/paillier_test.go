package paillier

import (
	"crypto/rand"
	"math/big"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

var (
	testKeyOnce sync.Once
	testKey     *PrivateKey
)

// newTestKey returns a small (512-bit) keypair shared by the package tests.
func newTestKey(t testing.TB) *PrivateKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = GenerateKey(rand.Reader, 512)
		if err != nil {
			t.Fatal(err)
		}
	})
	return testKey
}

func TestEncryptDecrypt(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)

	two128 := new(big.Int).Lsh(big.NewInt(1), 128)
	for _, m := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(42), two128} {
		ct, err := Encrypt(&priv.PublicKey, m)
		c.Assert(err, qt.IsNil)
		c.Assert(ValidCiphertext(&priv.PublicKey, ct), qt.IsTrue)

		pt, err := Decrypt(priv, ct)
		c.Assert(err, qt.IsNil)
		c.Assert(pt.String(), qt.Equals, m.String())
	}
}

func TestHomomorphicAdditivity(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)
	pub := &priv.PublicKey

	for i := 0; i < 5; i++ {
		p1, err := rand.Int(rand.Reader, pub.N)
		c.Assert(err, qt.IsNil)
		p2, err := rand.Int(rand.Reader, pub.N)
		c.Assert(err, qt.IsNil)

		c1, err := Encrypt(pub, p1)
		c.Assert(err, qt.IsNil)
		c2, err := Encrypt(pub, p2)
		c.Assert(err, qt.IsNil)

		sum, err := Decrypt(priv, Combine(pub, c1, c2))
		c.Assert(err, qt.IsNil)

		expected := new(big.Int).Add(p1, p2)
		expected.Mod(expected, pub.N)
		c.Assert(sum.String(), qt.Equals, expected.String())
	}

	// the identity decrypts to zero and is neutral for Combine
	zero, err := Decrypt(priv, Identity())
	c.Assert(err, qt.IsNil)
	c.Assert(zero.Sign(), qt.Equals, 0)
}

func TestRandomGenerator(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)
	n := priv.PublicKey.N
	n2 := priv.PublicKey.NSquared

	// rebuild the key with g = (1+n)^a * b^n mod n^2, a generator different
	// from n+1, and recompute mu for it.
	a := big.NewInt(7)
	b := big.NewInt(3)
	g := new(big.Int).Exp(new(big.Int).Add(n, one), a, n2)
	g.Mul(g, new(big.Int).Exp(b, n, n2)).Mod(g, n2)
	lg := new(big.Int).Exp(g, priv.Lambda, n2)
	lg.Sub(lg, one).Div(lg, n)
	mu := new(big.Int).ModInverse(lg, n)
	c.Assert(mu, qt.Not(qt.IsNil))

	pub, err := NewPublicKey(n, g)
	c.Assert(err, qt.IsNil)
	priv2, err := NewPrivateKey(pub, priv.Lambda, mu)
	c.Assert(err, qt.IsNil)

	m := big.NewInt(12345)
	ct, err := Encrypt(pub, m)
	c.Assert(err, qt.IsNil)
	pt, err := Decrypt(priv2, ct)
	c.Assert(err, qt.IsNil)
	c.Assert(pt.String(), qt.Equals, m.String())
}

func TestOutOfRange(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)
	pub := &priv.PublicKey

	_, err := Encrypt(pub, pub.N)
	c.Assert(err, qt.ErrorIs, ErrInvalidPlaintext)
	_, err = Encrypt(pub, big.NewInt(-1))
	c.Assert(err, qt.ErrorIs, ErrInvalidPlaintext)

	_, err = Decrypt(priv, big.NewInt(0))
	c.Assert(err, qt.ErrorIs, ErrInvalidCiphertext)
	_, err = Decrypt(priv, pub.NSquared)
	c.Assert(err, qt.ErrorIs, ErrInvalidCiphertext)

	_, err = GenerateKey(rand.Reader, 256)
	c.Assert(err, qt.ErrorMatches, "modulus of 256 bits is too small.*")
	_, err = NewPublicKey(big.NewInt(1<<62), big.NewInt(2))
	c.Assert(err, qt.ErrorMatches, "modulus of .* bits is too small.*")
}

func TestGenerateKeyShape(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)

	c.Assert(priv.N.BitLen(), qt.Equals, 512)
	c.Assert(priv.G.String(), qt.Equals, new(big.Int).Add(priv.N, one).String())
	c.Assert(priv.NSquared.String(), qt.Equals, new(big.Int).Mul(priv.N, priv.N).String())

	// with g = n+1, mu is the inverse of lambda modulo n
	check := new(big.Int).Mul(priv.Lambda, priv.Mu)
	c.Assert(check.Mod(check, priv.N).Cmp(one), qt.Equals, 0)

	// the key survives a rebuild from its serialised components
	rebuilt, err := NewPrivateKey(&priv.PublicKey, priv.Lambda, priv.Mu)
	c.Assert(err, qt.IsNil)
	ct, err := Encrypt(&priv.PublicKey, big.NewInt(7))
	c.Assert(err, qt.IsNil)
	pt, err := Decrypt(rebuilt, ct)
	c.Assert(err, qt.IsNil)
	c.Assert(pt.Int64(), qt.Equals, int64(7))
}

func TestPrivateKeyMismatch(t *testing.T) {
	c := qt.New(t)
	priv := newTestKey(t)
	pub := &priv.PublicKey

	wrongMu := new(big.Int).Add(priv.Mu, one)
	wrongMu.Mod(wrongMu, pub.N)
	_, err := NewPrivateKey(pub, priv.Lambda, wrongMu)
	c.Assert(err, qt.ErrorIs, ErrKeyMismatch)

	_, err = NewPrivateKey(pub, priv.Lambda, pub.N)
	c.Assert(err, qt.ErrorMatches, "invalid private key component")
	_, err = NewPrivateKey(pub, big.NewInt(0), priv.Mu)
	c.Assert(err, qt.ErrorMatches, "invalid private key component")
}
