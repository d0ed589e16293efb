// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package score computes deterministic bid scores.
package score

import "github.com/shopspring/decimal"

// Coefficients are the per-campaign tuning knobs. Alpha weighs price, Beta
// weighs time-to-bid and Gamma weighs the user's reputation prior.
type Coefficients struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// CoefficientsFromDecimal converts stored campaign parameters.
func CoefficientsFromDecimal(alpha, beta, gamma decimal.Decimal) Coefficients {
	return Coefficients{
		Alpha: alpha.InexactFloat64(),
		Beta:  beta.InexactFloat64(),
		Gamma: gamma.InexactFloat64(),
	}
}

// Compute returns S = α·P + β/(T+1) + γ·W.
//
// The price term grows linearly so higher bids dominate; the time term falls
// hyperbolically so early bids get a bounded advantage capped at β; the weight
// term is an additive reputation prior. The +1 keeps S finite at T=0.
func Compute(price float64, elapsedMs int64, weight float64, c Coefficients) float64 {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return c.Alpha*price + c.Beta/float64(elapsedMs+1) + c.Gamma*weight
}
