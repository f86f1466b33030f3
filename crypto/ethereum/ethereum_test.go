package ethereum

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestSignKeysGeneration(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)

	priv := HexKey(s)
	c.Assert(priv, qt.HasLen, 64)

	// Test key import
	imported := NewSignKeys()
	c.Assert(imported.AddHexKey(priv), qt.IsNil)
	c.Assert(HexKey(imported), qt.Equals, priv)
	c.Assert(imported.Address(), qt.Equals, s.Address())
	c.Assert(imported.PrivateKey().PublicKey.Equal(&s.Public), qt.IsTrue)
}

func TestAddHexKeyFormats(t *testing.T) {
	c := qt.New(t)

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)
	priv := HexKey(s)

	for _, raw := range []string{priv, "0x" + priv, `"0x` + priv + `"`, " " + priv + "\n"} {
		k := NewSignKeys()
		c.Assert(k.AddHexKey(raw), qt.IsNil, qt.Commentf("raw %q", raw))
		c.Assert(k.Address(), qt.Equals, s.Address())
	}

	c.Assert(NewSignKeys().AddHexKey(""), qt.ErrorIs, ErrNoSigningKey)
	c.Assert(NewSignKeys().AddHexKey("zz"), qt.ErrorMatches, "invalid signing key.*")
}

func TestLoadSignKeys(t *testing.T) {
	c := qt.New(t)

	s := NewSignKeys()
	c.Assert(s.Generate(), qt.IsNil)

	path := filepath.Join(t.TempDir(), "signer.key")
	c.Assert(os.WriteFile(path, []byte(HexKey(s)+"\n"), 0o600), qt.IsNil)

	loaded, err := LoadSignKeys(path, "")
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.Address(), qt.Equals, s.Address())

	_, err = LoadSignKeys(filepath.Join(t.TempDir(), "missing"), "")
	c.Assert(err, qt.ErrorIs, ErrNoSigningKey)

	t.Setenv("TEST_SIGNER_KEY", "0x"+HexKey(s))
	loaded, err = LoadSignKeys("", "TEST_SIGNER_KEY")
	c.Assert(err, qt.IsNil)
	c.Assert(loaded.Address(), qt.Equals, s.Address())

	_, err = LoadSignKeys("", "TEST_SIGNER_KEY_UNSET")
	c.Assert(err, qt.ErrorIs, ErrNoSigningKey)
}
