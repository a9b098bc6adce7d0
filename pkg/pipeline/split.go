package pipeline

import (
	"math"
	"math/rand/v2"
)

// Split shuffles the indices 0..n-1 with a seeded stream and divides them
// into a train and a validation set. Lengths are floored and the remainder
// goes to the train set first, then the validation set.
func Split(n int, trainFraction float64, seed uint64) (train, val []int) {
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)

	trainFraction = math.Max(0, math.Min(1, trainFraction))
	// the epsilon absorbs 1-0.8 != 0.2
	trainLen := int(math.Floor(trainFraction*float64(n) + 1e-9))
	valLen := int(math.Floor((1-trainFraction)*float64(n) + 1e-9))
	if trainLen+valLen > n {
		valLen = n - trainLen
	}
	for rem, i := n-trainLen-valLen, 0; rem > 0; rem, i = rem-1, i+1 {
		if i%2 == 0 {
			trainLen++
		} else {
			valLen++
		}
	}
	return perm[:trainLen], perm[trainLen : trainLen+valLen]
}
