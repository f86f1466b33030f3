package tally

import (
	"context"
	"fmt"
	"math/big"
	"runtime"

	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest number of entries worth handing to a worker.
const minChunk = 64

// Anomaly is a non-fatal problem found in one ledger entry. The entry is
// left out of the aggregate.
type Anomaly struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// Aggregate is the homomorphic combination of a list of ciphertexts.
type Aggregate struct {
	// Ciphertext is the product mod n^2 of every valid entry.
	Ciphertext *big.Int
	// Count is the number of valid entries folded into Ciphertext.
	Count int
	// Anomalies lists the skipped entries in ledger order.
	Anomalies []Anomaly
}

// Skipped returns the number of malformed entries left out.
func (a *Aggregate) Skipped() int {
	return len(a.Anomalies)
}

// ParseCiphertext converts a raw ledger entry into a ciphertext. It returns a
// MalformedCiphertext error if the entry is empty or outside (0, n^2).
func ParseCiphertext(pub *paillier.PublicKey, raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return nil, Errorf(KindMalformedCiphertext, "empty entry")
	}
	c := new(big.Int).SetBytes(raw)
	if !paillier.ValidCiphertext(pub, c) {
		return nil, Errorf(KindMalformedCiphertext, "value of %d bits outside (0, n^2)", c.BitLen())
	}
	return c, nil
}

// Combine folds the entries into one aggregate ciphertext using only the
// public key. Malformed entries are skipped and reported as anomalies. If no
// valid entry remains it returns ErrNoVotes together with the (empty)
// aggregate, so the anomalies are still available to the caller.
func Combine(pub *paillier.PublicKey, entries [][]byte) (*Aggregate, error) {
	agg := fold(pub, entries, 0)
	logAnomalies(agg.Anomalies)
	if agg.Count == 0 {
		return agg, ErrNoVotes
	}
	return agg, nil
}

// CombineParallel is Combine split across workers. Multiplication mod n^2 is
// associative and commutative, so every contiguous chunk is folded on its
// own and the partial products are multiplied together in order. A
// non-positive workers value uses GOMAXPROCS.
func CombineParallel(ctx context.Context, pub *paillier.PublicKey, entries [][]byte, workers int) (*Aggregate, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if limit := (len(entries) + minChunk - 1) / minChunk; workers > limit {
		workers = limit
	}
	if workers <= 1 {
		return Combine(pub, entries)
	}

	chunk := (len(entries) + workers - 1) / workers
	partials := make([]*Aggregate, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(entries) {
			break
		}
		end := min(start+chunk, len(entries))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partials[w] = fold(pub, entries[start:end], start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel aggregation: %w", err)
	}

	agg := &Aggregate{Ciphertext: paillier.Identity()}
	for _, p := range partials {
		if p == nil {
			continue
		}
		agg.Ciphertext = paillier.Combine(pub, agg.Ciphertext, p.Ciphertext)
		agg.Count += p.Count
		agg.Anomalies = append(agg.Anomalies, p.Anomalies...)
	}
	logAnomalies(agg.Anomalies)
	if agg.Count == 0 {
		return agg, ErrNoVotes
	}
	return agg, nil
}

// fold multiplies the valid entries together; offset is the ledger index of
// entries[0].
func fold(pub *paillier.PublicKey, entries [][]byte, offset int) *Aggregate {
	agg := &Aggregate{Ciphertext: paillier.Identity()}
	for i, raw := range entries {
		c, err := ParseCiphertext(pub, raw)
		if err != nil {
			agg.Anomalies = append(agg.Anomalies, Anomaly{Index: offset + i, Err: err})
			continue
		}
		agg.Ciphertext = paillier.Combine(pub, agg.Ciphertext, c)
		agg.Count++
	}
	return agg
}

func logAnomalies(anomalies []Anomaly) {
	for _, a := range anomalies {
		log.Warnw("skipping invalid ciphertext entry", "index", a.Index, "error", a.Err.Error())
	}
}
