// Package wigner implements the angular-momentum algebra needed by the
// amplitude model: Clebsch-Gordan coefficients, Wigner small-d and Wigner-D
// functions. Spins and projections are passed as twice their value so that
// half-integer spins stay exact integers.
package wigner

import (
	"math"
	"math/big"
	"math/cmplx"
)

// maxFact bounds the float factorial table; n! overflows float64 at 171.
const maxFact = 171

var fact [maxFact]float64

func init() {
	fact[0] = 1
	for i := 1; i < maxFact; i++ {
		fact[i] = fact[i-1] * float64(i)
	}
}

// Triangle reports whether (ta, tb, tc), given as doubled spins, satisfy the
// triangle inequality and couple to an integer total.
func Triangle(ta, tb, tc int) bool {
	if tc < abs(ta-tb) || tc > ta+tb {
		return false
	}
	return (ta+tb+tc)%2 == 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func bigFact(n int) *big.Int {
	f := big.NewInt(1)
	for i := 2; i <= n; i++ {
		f.Mul(f, big.NewInt(int64(i)))
	}
	return f
}

// CG returns the Clebsch-Gordan coefficient <j1 m1 j2 m2 | j3 m3> with all
// arguments doubled. The combinatorics are evaluated exactly on rationals;
// only the final square root rounds. Invalid couplings return 0.
func CG(tj1, tm1, tj2, tm2, tj3, tm3 int) float64 {
	if tm1+tm2 != tm3 {
		return 0
	}
	if !Triangle(tj1, tj2, tj3) {
		return 0
	}
	if abs(tm1) > tj1 || abs(tm2) > tj2 || abs(tm3) > tj3 {
		return 0
	}
	if (tj1+tm1)%2 != 0 || (tj2+tm2)%2 != 0 || (tj3+tm3)%2 != 0 {
		return 0
	}

	// Racah's closed form. All factorial arguments below are plain integers
	// once the doubled spins are halved pairwise.
	j1m1 := (tj1 + tm1) / 2
	j1m1m := (tj1 - tm1) / 2
	j2m2 := (tj2 + tm2) / 2
	j2m2m := (tj2 - tm2) / 2
	j3m3 := (tj3 + tm3) / 2
	j3m3m := (tj3 - tm3) / 2

	jj1 := (tj1 + tj2 - tj3) / 2
	jj2 := (tj1 - tj2 + tj3) / 2
	jj3 := (-tj1 + tj2 + tj3) / 2
	jtot := (tj1 + tj2 + tj3) / 2

	pref := new(big.Rat).SetFrac(
		new(big.Int).Mul(big.NewInt(int64(tj3+1)),
			prod(bigFact(jj1), bigFact(jj2), bigFact(jj3),
				bigFact(j1m1), bigFact(j1m1m), bigFact(j2m2),
				bigFact(j2m2m), bigFact(j3m3), bigFact(j3m3m))),
		bigFact(jtot+1),
	)

	kmin := 0
	if v := (tj2 - tj3 - tm1) / 2; v > kmin {
		kmin = v
	}
	if v := (tj1 - tj3 + tm2) / 2; v > kmin {
		kmin = v
	}
	kmax := jj1
	if j1m1m < kmax {
		kmax = j1m1m
	}
	if j2m2 < kmax {
		kmax = j2m2
	}

	sum := new(big.Rat)
	for k := kmin; k <= kmax; k++ {
		den := prod(
			bigFact(k),
			bigFact(jj1-k),
			bigFact(j1m1m-k),
			bigFact(j2m2-k),
			bigFact((tj3-tj2+tm1)/2+k),
			bigFact((tj3-tj1-tm2)/2+k),
		)
		term := new(big.Rat).SetFrac(big.NewInt(1), den)
		if k%2 != 0 {
			term.Neg(term)
		}
		sum.Add(sum, term)
	}

	p, _ := pref.Float64()
	s, _ := sum.Float64()
	return s * math.Sqrt(p)
}

func prod(xs ...*big.Int) *big.Int {
	out := big.NewInt(1)
	for _, x := range xs {
		out.Mul(out, x)
	}
	return out
}

// SmallD returns the Wigner small-d function d^j_{m1,m2}(beta) with doubled
// spin arguments, in the Condon-Shortley convention.
func SmallD(tj, tm1, tm2 int, beta float64) float64 {
	if abs(tm1) > tj || abs(tm2) > tj {
		return 0
	}
	if (tj+tm1)%2 != 0 || (tj+tm2)%2 != 0 {
		return 0
	}
	a := (tj + tm2) / 2  // j+m
	b := (tj - tm1) / 2  // j-m'
	s := (tm1 - tm2) / 2 // m'-m
	pref := math.Sqrt(fact[(tj+tm1)/2] * fact[(tj-tm1)/2] * fact[(tj+tm2)/2] * fact[(tj-tm2)/2])

	c := math.Cos(beta / 2)
	sn := math.Sin(beta / 2)

	kmin := 0
	if -s > kmin {
		kmin = -s
	}
	kmax := a
	if b < kmax {
		kmax = b
	}

	var sum float64
	for k := kmin; k <= kmax; k++ {
		den := fact[a-k] * fact[k] * fact[b-k] * fact[k+s]
		cosExp := (2*tj+tm2-tm1)/2 - 2*k
		sinExp := 2*k + s
		term := math.Pow(c, float64(cosExp)) * math.Pow(sn, float64(sinExp)) / den
		if (k+s)%2 != 0 {
			term = -term
		}
		sum += term
	}
	return pref * sum
}

// D returns the Wigner D-function D^j_{m1,m2}(alpha, beta, gamma) with
// doubled spin arguments: exp(-i m1 alpha) d^j_{m1,m2}(beta) exp(-i m2 gamma).
func D(tj, tm1, tm2 int, alpha, beta, gamma float64) complex128 {
	d := SmallD(tj, tm1, tm2, beta)
	if d == 0 {
		return 0
	}
	phase := -float64(tm1)/2*alpha - float64(tm2)/2*gamma
	return cmplx.Exp(complex(0, phase)) * complex(d, 0)
}
