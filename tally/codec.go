package tally

import (
	"math/big"
)

// FieldBits is the width of each counter inside a packed plaintext.
const FieldBits = 128

var (
	// fieldLimit is 2^128, the first value that does not fit in a field.
	fieldLimit = new(big.Int).Lsh(big.NewInt(1), FieldBits)
	// fieldMask selects the low (against) field.
	fieldMask = new(big.Int).Sub(fieldLimit, big.NewInt(1))
	// packedLimit is 2^256, the first value that does not fit in two fields.
	packedLimit = new(big.Int).Lsh(big.NewInt(1), 2*FieldBits)
)

// Pack concatenates both counters into one plaintext:
// (forVotes << 128) | againstVotes. It fails with an EncodingError if a
// counter is negative or does not fit in 128 bits.
func Pack(forVotes, againstVotes *big.Int) (*big.Int, error) {
	if err := checkField("forVotes", forVotes); err != nil {
		return nil, err
	}
	if err := checkField("againstVotes", againstVotes); err != nil {
		return nil, err
	}
	packed := new(big.Int).Lsh(forVotes, FieldBits)
	return packed.Or(packed, againstVotes), nil
}

// PackUint64 is Pack for counters that fit in a machine word.
func PackUint64(forVotes, againstVotes uint64) *big.Int {
	packed, err := Pack(new(big.Int).SetUint64(forVotes), new(big.Int).SetUint64(againstVotes))
	if err != nil {
		// unreachable, both values are below 2^64
		panic(err)
	}
	return packed
}

// Unpack splits a plaintext into its counters: the high part is forVotes and
// the low 128 bits are againstVotes. Any value decodes deterministically;
// values of 2^256 or more yield a forVotes wider than 128 bits, which
// CheckOverflow reports.
func Unpack(plaintext *big.Int) (forVotes, againstVotes *big.Int) {
	forVotes = new(big.Int).Rsh(plaintext, FieldBits)
	againstVotes = new(big.Int).And(plaintext, fieldMask)
	return forVotes, againstVotes
}

// CheckOverflow enforces the reject-never-wrap policy on a decrypted sum of
// ballots ciphertexts. Each ballot adds at most one to a counter, so a
// counter larger than ballots means some field carried into its neighbour
// (or a ballot was packed out of range before encryption).
func CheckOverflow(plaintext *big.Int, ballots int) error {
	if plaintext.Sign() < 0 || plaintext.Cmp(packedLimit) >= 0 {
		return Errorf(KindTallyOverflow, "decrypted sum has %d bits, exceeds %d", plaintext.BitLen(), 2*FieldBits)
	}
	forVotes, againstVotes := Unpack(plaintext)
	limit := big.NewInt(int64(ballots))
	if forVotes.Cmp(limit) > 0 {
		return Errorf(KindTallyOverflow, "forVotes %s exceeds ballot count %d", forVotes, ballots)
	}
	if againstVotes.Cmp(limit) > 0 {
		return Errorf(KindTallyOverflow, "againstVotes %s exceeds ballot count %d", againstVotes, ballots)
	}
	return nil
}

func checkField(name string, v *big.Int) error {
	if v == nil {
		return Errorf(KindEncodingError, "%s is nil", name)
	}
	if v.Sign() < 0 {
		return Errorf(KindEncodingError, "%s is negative: %s", name, v)
	}
	if v.Cmp(fieldLimit) >= 0 {
		return Errorf(KindEncodingError, "%s does not fit in %d bits", name, FieldBits)
	}
	return nil
}
