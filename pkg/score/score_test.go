// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package score

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func stdCoefficients() Coefficients {
	return Coefficients{Alpha: 1, Beta: 1000, Gamma: 100}
}

func TestComputeSingleBid(t *testing.T) {
	require := require.New(t)

	// P=1000 at T=500ms with W=2.0: 1000 + 1000/501 + 200
	s := Compute(1000, 500, 2.0, stdCoefficients())
	require.InDelta(1201.996, s, 0.001)
}

func TestComputeOverbid(t *testing.T) {
	require := require.New(t)

	s := Compute(1500, 3000, 2.0, stdCoefficients())
	require.InDelta(1700.333, s, 0.001)
}

func TestComputeTie(t *testing.T) {
	require := require.New(t)

	// Two users with W=1.0 bidding 1000 at T=0 score identically.
	s1 := Compute(1000, 0, 1.0, stdCoefficients())
	s2 := Compute(1000, 0, 1.0, stdCoefficients())
	require.Equal(s1, s2)
	require.InDelta(2100, s1, 1e-9)
}

func TestComputeTimeTermBounded(t *testing.T) {
	require := require.New(t)

	// At T=0 the time term equals β exactly.
	s := Compute(0, 0, 0, stdCoefficients())
	require.InDelta(1000, s, 1e-9)

	// The term only decays from there.
	for _, elapsed := range []int64{1, 10, 1000, 1 << 40} {
		require.Less(Compute(0, elapsed, 0, stdCoefficients()), s)
	}
}

func TestComputeNegativeElapsedClamped(t *testing.T) {
	require := require.New(t)

	require.Equal(Compute(100, 0, 1, stdCoefficients()), Compute(100, -50, 1, stdCoefficients()))
}

func TestCoefficientsFromDecimal(t *testing.T) {
	require := require.New(t)

	c := CoefficientsFromDecimal(
		decimal.NewFromFloat(1.0),
		decimal.NewFromFloat(1000.0),
		decimal.NewFromFloat(100.0),
	)
	require.Equal(stdCoefficients(), c)
}

func BenchmarkCompute(b *testing.B) {
	c := stdCoefficients()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(1000, int64(i), 2.0, c)
	}
}
