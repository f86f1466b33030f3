package tally

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPackUnpack(t *testing.T) {
	c := qt.New(t)
	max128 := new(big.Int).Sub(fieldLimit, big.NewInt(1))

	for _, tc := range []struct {
		forVotes, againstVotes *big.Int
	}{
		{big.NewInt(0), big.NewInt(0)},
		{big.NewInt(1), big.NewInt(0)},
		{big.NewInt(0), big.NewInt(1)},
		{big.NewInt(3), big.NewInt(5)},
		{max128, big.NewInt(0)},
		{big.NewInt(0), max128},
		{max128, max128},
	} {
		packed, err := Pack(tc.forVotes, tc.againstVotes)
		c.Assert(err, qt.IsNil)
		c.Assert(packed.BitLen() <= 2*FieldBits, qt.IsTrue)

		f, a := Unpack(packed)
		c.Assert(f.String(), qt.Equals, tc.forVotes.String())
		c.Assert(a.String(), qt.Equals, tc.againstVotes.String())
	}

	// a single "for" ballot is 2^128, a single "against" ballot is 1
	c.Assert(PackUint64(1, 0).String(), qt.Equals, fieldLimit.String())
	c.Assert(PackUint64(0, 1).String(), qt.Equals, "1")
}

func TestPackRejectsOutOfRange(t *testing.T) {
	c := qt.New(t)

	for _, tc := range []struct {
		forVotes, againstVotes *big.Int
	}{
		{fieldLimit, big.NewInt(0)},
		{big.NewInt(0), fieldLimit},
		{big.NewInt(-1), big.NewInt(0)},
		{big.NewInt(0), big.NewInt(-1)},
		{nil, big.NewInt(0)},
	} {
		_, err := Pack(tc.forVotes, tc.againstVotes)
		c.Assert(err, qt.Not(qt.IsNil))
		c.Assert(KindOf(err), qt.Equals, KindEncodingError)
	}
}

func TestUnpackSum(t *testing.T) {
	c := qt.New(t)

	// three ballots: for, for, against
	sum := new(big.Int)
	for _, p := range []*big.Int{PackUint64(1, 0), PackUint64(1, 0), PackUint64(0, 1)} {
		sum.Add(sum, p)
	}
	f, a := Unpack(sum)
	c.Assert(f.Int64(), qt.Equals, int64(2))
	c.Assert(a.Int64(), qt.Equals, int64(1))
	c.Assert(CheckOverflow(sum, 3), qt.IsNil)
}

func TestCheckOverflow(t *testing.T) {
	c := qt.New(t)

	c.Assert(CheckOverflow(big.NewInt(0), 0), qt.IsNil)
	c.Assert(CheckOverflow(PackUint64(4, 6), 10), qt.IsNil)

	// a counter larger than the ballot count is a carry or a bad ballot
	err := CheckOverflow(PackUint64(11, 0), 10)
	c.Assert(KindOf(err), qt.Equals, KindTallyOverflow)
	err = CheckOverflow(PackUint64(0, 11), 10)
	c.Assert(KindOf(err), qt.Equals, KindTallyOverflow)

	// values of 2^256 or more never decode
	err = CheckOverflow(packedLimit, 1)
	c.Assert(KindOf(err), qt.Equals, KindTallyOverflow)
	c.Assert(err, qt.ErrorMatches, "TallyOverflow: decrypted sum has 257 bits.*")

	err = CheckOverflow(big.NewInt(-1), 1)
	c.Assert(KindOf(err), qt.Equals, KindTallyOverflow)
}
