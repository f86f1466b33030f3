package tally

import (
	"context"
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"sync"
	"testing"

	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	qt "github.com/frankban/quicktest"
)

var (
	keyOnce sync.Once
	key     *paillier.PrivateKey
)

func testKey(t testing.TB) *paillier.PrivateKey {
	keyOnce.Do(func() {
		var err error
		if key, err = paillier.GenerateKey(rand.Reader, 512); err != nil {
			t.Fatal(err)
		}
	})
	return key
}

// encryptBallots encrypts one packed ballot per entry of votes (true is a
// "for" vote) and returns them as raw ledger entries.
func encryptBallots(c *qt.C, pub *paillier.PublicKey, votes []bool) [][]byte {
	entries := make([][]byte, len(votes))
	for i, v := range votes {
		plain := PackUint64(0, 1)
		if v {
			plain = PackUint64(1, 0)
		}
		ct, err := paillier.Encrypt(pub, plain)
		c.Assert(err, qt.IsNil)
		entries[i] = ct.Bytes()
	}
	return entries
}

func decryptCounts(c *qt.C, priv *paillier.PrivateKey, agg *Aggregate) (int64, int64) {
	plain, err := paillier.Decrypt(priv, agg.Ciphertext)
	c.Assert(err, qt.IsNil)
	c.Assert(CheckOverflow(plain, agg.Count), qt.IsNil)
	f, a := Unpack(plain)
	return f.Int64(), a.Int64()
}

func TestCombineSingleForVote(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)

	// one "for" ballot (2^128) and one zero plaintext
	c1, err := paillier.Encrypt(&priv.PublicKey, new(big.Int).Lsh(big.NewInt(1), 128))
	c.Assert(err, qt.IsNil)
	c2, err := paillier.Encrypt(&priv.PublicKey, big.NewInt(0))
	c.Assert(err, qt.IsNil)

	agg, err := Combine(&priv.PublicKey, [][]byte{c1.Bytes(), c2.Bytes()})
	c.Assert(err, qt.IsNil)
	c.Assert(agg.Count, qt.Equals, 2)
	c.Assert(agg.Skipped(), qt.Equals, 0)

	f, a := decryptCounts(c, priv, agg)
	c.Assert(f, qt.Equals, int64(1))
	c.Assert(a, qt.Equals, int64(0))
}

func TestCombineCounts(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)

	votes := []bool{true, false, true, true, false, true, false}
	agg, err := Combine(&priv.PublicKey, encryptBallots(c, &priv.PublicKey, votes))
	c.Assert(err, qt.IsNil)
	c.Assert(agg.Count, qt.Equals, len(votes))

	f, a := decryptCounts(c, priv, agg)
	c.Assert(f, qt.Equals, int64(4))
	c.Assert(a, qt.Equals, int64(3))
}

func TestCombineOrderIndependent(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)
	pub := &priv.PublicKey

	entries := encryptBallots(c, pub, []bool{true, false, true, false, false, true})
	base, err := Combine(pub, entries)
	c.Assert(err, qt.IsNil)

	rng := mrand.New(mrand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([][]byte(nil), entries...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		agg, err := Combine(pub, shuffled)
		c.Assert(err, qt.IsNil)
		c.Assert(agg.Ciphertext.String(), qt.Equals, base.Ciphertext.String())
	}
}

func TestCombineSkipsMalformed(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)
	pub := &priv.PublicKey

	valid := encryptBallots(c, pub, []bool{true, true, false})
	expected, err := Combine(pub, valid)
	c.Assert(err, qt.IsNil)

	malformed := [][]byte{
		{},                   // empty
		{0x00},               // zero
		pub.NSquared.Bytes(), // n^2
		append([]byte{0x01}, pub.NSquared.Bytes()...), // above n^2
	}

	// the aggregate does not depend on where the bad entries sit
	for pos := 0; pos <= len(valid); pos++ {
		entries := append([][]byte(nil), valid[:pos]...)
		entries = append(entries, malformed...)
		entries = append(entries, valid[pos:]...)

		agg, err := Combine(pub, entries)
		c.Assert(err, qt.IsNil)
		c.Assert(agg.Count, qt.Equals, len(valid))
		c.Assert(agg.Skipped(), qt.Equals, len(malformed))
		c.Assert(agg.Ciphertext.String(), qt.Equals, expected.Ciphertext.String())
		for i, a := range agg.Anomalies {
			c.Assert(a.Index, qt.Equals, pos+i)
			c.Assert(KindOf(a.Err), qt.Equals, KindMalformedCiphertext)
		}
	}
}

func TestCombineNoVotes(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)
	pub := &priv.PublicKey

	agg, err := Combine(pub, nil)
	c.Assert(err, qt.ErrorIs, ErrNoVotes)
	c.Assert(agg.Count, qt.Equals, 0)
	c.Assert(agg.Ciphertext.String(), qt.Equals, "1")

	agg, err = Combine(pub, [][]byte{{}, {0x00}})
	c.Assert(err, qt.ErrorIs, ErrNoVotes)
	c.Assert(agg.Skipped(), qt.Equals, 2)

	_, err = CombineParallel(context.Background(), pub, nil, 4)
	c.Assert(err, qt.ErrorIs, ErrNoVotes)
}

func TestCombineParallel(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)
	pub := &priv.PublicKey

	votes := make([]bool, 300)
	forVotes := 0
	for i := range votes {
		votes[i] = i%3 == 0
		if votes[i] {
			forVotes++
		}
	}
	entries := encryptBallots(c, pub, votes)
	// sprinkle malformed entries across different chunks
	for _, i := range []int{5, 130, 299} {
		entries[i] = []byte{}
		if votes[i] {
			forVotes--
		}
	}

	sequential, err := Combine(pub, entries)
	c.Assert(err, qt.IsNil)

	for _, workers := range []int{2, 3, 4, 16} {
		parallel, err := CombineParallel(context.Background(), pub, entries, workers)
		c.Assert(err, qt.IsNil)
		c.Assert(parallel.Ciphertext.String(), qt.Equals, sequential.Ciphertext.String())
		c.Assert(parallel.Count, qt.Equals, sequential.Count)
		c.Assert(parallel.Anomalies, qt.HasLen, 3)
		c.Assert(parallel.Anomalies[0].Index, qt.Equals, 5)
		c.Assert(parallel.Anomalies[1].Index, qt.Equals, 130)
		c.Assert(parallel.Anomalies[2].Index, qt.Equals, 299)
	}

	f, a := decryptCounts(c, priv, sequential)
	c.Assert(f, qt.Equals, int64(forVotes))
	c.Assert(a, qt.Equals, int64(sequential.Count-forVotes))
}

func TestCombineParallelCancelled(t *testing.T) {
	c := qt.New(t)
	priv := testKey(t)

	entries := make([][]byte, 200)
	for i := range entries {
		entries[i] = []byte{0x02}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CombineParallel(ctx, &priv.PublicKey, entries, 4)
	c.Assert(err, qt.ErrorIs, context.Canceled)
}
