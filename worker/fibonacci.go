package worker

import (
	"math/big"

	"golang.org/x/exp/constraints"
)

// Fibonacci returns the n-th Fibonacci number, F(0) = 0, F(1) = 1.
// Negative n gives 0. The result is exact for every n: the writers store values
// up to 100 and F(93) already overflows int64.
func Fibonacci[T constraints.Integer](n T) *big.Int {
	prev, curr := big.NewInt(0), big.NewInt(1)
	if n <= 0 {
		return prev
	}
	for i := T(1); i < n; i++ {
		prev.Add(prev, curr)
		prev, curr = curr, prev
	}
	return curr
}
