package lineshape

import "math"

func init() {
	Register("one", func() Model { return one{} })
	Register("BW", func() Model { return bw{} })
	Register("BWR", func() Model { return bwr{} })
}

// one is the constant lineshape used for non-resonant components.
type one struct{}

func (one) Name() string                     { return "one" }
func (one) Eval(float64, Context) complex128 { return 1 }

// bw is the simple Breit-Wigner 1/(m0^2 - m^2 - i m0 g0).
type bw struct{}

func (bw) Name() string { return "BW" }

func (bw) Eval(m float64, ctx Context) complex128 {
	dom := complex(ctx.Mass*ctx.Mass-m*m, -ctx.Mass*ctx.Width)
	if dom == 0 {
		return 0
	}
	return 1 / dom
}

// bwr is the relativistic Breit-Wigner with a mass-dependent width and
// Blatt-Weisskopf barrier factors.
type bwr struct{}

func (bwr) Name() string { return "BWR" }

func (bwr) Eval(m float64, ctx Context) complex128 {
	if m <= 0 {
		return 0
	}
	q := RelativeMomentum(m, ctx.DaughterMass1, ctx.DaughterMass2)
	q0 := RelativeMomentum(ctx.Mass, ctx.DaughterMass1, ctx.DaughterMass2)
	if q <= 0 || q0 <= 0 {
		// Below threshold the propagator has no physical value; a defined
		// zero keeps the evaluation alive per the numerical contract.
		return 0
	}
	d := ctx.BarrierRadius
	if d == 0 {
		d = DefaultBarrierRadius
	}
	bf := bprimePoly(ctx.L, q0*q0*d*d) / bprimePoly(ctx.L, q*q*d*d)
	gamma := ctx.Mass * ctx.Width * math.Pow(q/q0, float64(2*ctx.L+1)) * (ctx.Mass / m) * bf
	dom := complex(ctx.Mass*ctx.Mass-m*m, -gamma)
	if dom == 0 {
		return 0
	}
	return 1 / dom
}
