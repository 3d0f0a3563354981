// Package mockdata generates the synthetic catalog, deal feed and user set
// served by the mock data provider. All randomness flows through a seeded
// linear-congruential stream so that repeated runs with the same seed
// produce bit-identical data; demo screenshots and tests depend on that.
package mockdata

// LCG parameters. The modulus is small on purpose: the stream only feeds
// placeholder data, never anything security sensitive.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// Rand is a deterministic pseudo-random stream. Two instances built with
// the same seed emit identical sequences. Not safe for concurrent use;
// generators own their stream.
type Rand struct {
	seed int64
}

// NewRand returns a stream seeded with the given integer. Negative
// seeds are folded into [0, modulus) so the stream invariants hold for
// any integer input.
func NewRand(seed int64) *Rand {
	return &Rand{seed: ((seed % lcgModulus) + lcgModulus) % lcgModulus}
}

// Next advances the stream and returns a float in [0, 1).
func (r *Rand) Next() float64 {
	r.seed = (r.seed*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.seed) / lcgModulus
}

// Float returns a float in [min, max).
func (r *Rand) Float(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// Int returns an int in [min, max].
func (r *Rand) Int(min, max int) int {
	return min + int(r.Next()*float64(max-min+1))
}

// Bool returns true with probability p.
func (r *Rand) Bool(p float64) bool {
	return r.Next() < p
}

// Pick returns one element of choices. Panics on an empty slice, which is
// a programming error in the generator tables.
func (r *Rand) Pick(choices []string) string {
	return choices[r.Int(0, len(choices)-1)]
}
