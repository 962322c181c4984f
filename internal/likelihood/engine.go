// Package likelihood aggregates per-event amplitudes into the weighted
// negative log-likelihood an external minimizer consumes. Evaluation is
// data-parallel across events; the parameter vector is mutated only between
// evaluations and acts as an immutable snapshot while workers run.
package likelihood

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/zjrosen/pwfit/internal/amplitude"
	"github.com/zjrosen/pwfit/internal/dataio"
	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/pubsub"
)

// PreparedSample pairs a loaded sample with its cached kinematics. Weights
// align with the kinematics rows, bad events already removed.
type PreparedSample struct {
	Name     string
	Role     dataio.Role
	Kin      []kinematics.EventKinematics
	Weights  []float64
	Fraction float64

	// Src maps each kinematics row back to its event index in the loaded
	// sample; nil when no events were dropped.
	Src []int
}

// SourceIndex translates a kinematics row index to the loaded sample's
// event index, so diagnostics point at the file row.
func (s *PreparedSample) SourceIndex(i int) int {
	if s.Src == nil {
		return i
	}
	return s.Src[i]
}

// SumWeights returns the total weight of the prepared sample.
func (s *PreparedSample) SumWeights() float64 {
	var sum float64
	for _, w := range s.Weights {
		sum += w
	}
	return sum
}

// DensityError reports a non-positive predicted density: a parameter region
// with zero probability support. It aborts the current evaluation and
// carries enough context for the optimizer to reject the step.
type DensityError struct {
	Sample string
	Event  int
	Value  float64
	Params map[string]float64
}

func (e *DensityError) Error() string {
	return fmt.Sprintf("non-positive density %g at event %d of sample %q", e.Value, e.Event, e.Sample)
}

// Progress is published after each likelihood evaluation.
type Progress struct {
	Eval int
	NLL  float64
}

// Config assembles an Engine.
type Config struct {
	Model *amplitude.Model
	Vec   *params.Vector

	Data *PreparedSample
	Phsp *PreparedSample
	// PhspNoEff, when present, replaces Phsp in fit-fraction integrals.
	PhspNoEff *PreparedSample
	Bg        *PreparedSample
	InMC      *PreparedSample

	// BgWeight scales the sideband subtraction; zero disables it even when
	// a bg sample is present.
	BgWeight float64
	// InjectRatio blends the injected-MC normalization; Inject selects the
	// strategy, defaulting to the linear blend.
	InjectRatio float64
	Inject      InjectStrategy

	// FixChainIdx, when non-nil, rescales that chain's total coupling each
	// evaluation so its standalone integrated rate equals FixChainVal.
	FixChainIdx *int
	FixChainVal float64

	// Workers bounds evaluation parallelism; zero means GOMAXPROCS.
	Workers int

	// Tracer instruments evaluations; nil disables tracing.
	Tracer trace.Tracer
}

// Engine evaluates the negative log-likelihood and its gradient.
type Engine struct {
	cfg    Config
	model  *amplitude.Model
	vec    *params.Vector
	evals  int
	broker *pubsub.Broker[Progress]
}

// NewEngine validates the sample set and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Model == nil || cfg.Vec == nil {
		return nil, fmt.Errorf("likelihood: model and parameter vector are required")
	}
	if cfg.Data == nil || len(cfg.Data.Kin) == 0 {
		return nil, fmt.Errorf("likelihood: data sample is empty")
	}
	if cfg.Phsp == nil || len(cfg.Phsp.Kin) == 0 {
		return nil, fmt.Errorf("likelihood: phase-space sample is empty")
	}
	if cfg.Inject == nil {
		cfg.Inject = blendStrategy{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		cfg:    cfg,
		model:  cfg.Model,
		vec:    cfg.Vec,
		broker: pubsub.NewBroker[Progress](),
	}, nil
}

// Progress exposes the per-evaluation event stream.
func (e *Engine) Progress() *pubsub.Broker[Progress] { return e.broker }

// Vector returns the engine's parameter vector.
func (e *Engine) Vector() *params.Vector { return e.vec }

// NLL evaluates the negative log-likelihood at the free-parameter point x.
// A nil x evaluates at the current parameter values.
func (e *Engine) NLL(ctx context.Context, x []float64) (float64, error) {
	if x != nil {
		if err := e.vec.SetFreeValues(x); err != nil {
			return 0, err
		}
	}
	if e.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = e.cfg.Tracer.Start(ctx, "likelihood.eval")
		defer span.End()
		span.SetAttributes(
			attribute.Int("events.data", len(e.cfg.Data.Kin)),
			attribute.Int("events.phsp", len(e.cfg.Phsp.Kin)),
		)
	}

	if err := e.applyChainNorm(ctx); err != nil {
		return 0, err
	}

	logData, err := e.weightedLogSum(ctx, e.cfg.Data)
	if err != nil {
		return 0, err
	}

	norm, err := e.normIntegral(ctx, nil)
	if err != nil {
		return 0, err
	}
	if norm <= 0 || math.IsNaN(norm) {
		return 0, &DensityError{Sample: e.cfg.Phsp.Name, Event: -1, Value: norm, Params: e.vec.Snapshot()}
	}

	nEff := e.cfg.Data.SumWeights()
	lnL := logData
	if e.cfg.Bg != nil && e.cfg.BgWeight != 0 {
		logBg, err := e.weightedLogSum(ctx, e.cfg.Bg)
		if err != nil {
			return 0, err
		}
		lnL -= e.cfg.BgWeight * logBg
		nEff -= e.cfg.BgWeight * e.cfg.Bg.SumWeights()
	}
	lnL -= nEff * math.Log(norm)

	nll := -lnL
	e.evals++
	e.broker.Publish(pubsub.IterationEvent, Progress{Eval: e.evals, NLL: nll})
	return nll, nil
}

// Grad fills grad with the NLL gradient at x via central finite differences.
// Evaluation errors surface as +Inf values, letting the optimizer retreat.
func (e *Engine) Grad(ctx context.Context, grad, x []float64) {
	fd.Gradient(grad, func(xi []float64) float64 {
		nll, err := e.NLL(ctx, xi)
		if err != nil {
			log.ErrorErr(log.CatFit, "gradient probe failed", err)
			return math.Inf(1)
		}
		return nll
	}, x, &fd.Settings{Formula: fd.Central})
}

// applyChainNorm rescales the constrained chain's total coupling so that its
// standalone integrated rate equals the declared value, independent of the
// other chains' parameters.
func (e *Engine) applyChainNorm(ctx context.Context) error {
	if e.cfg.FixChainIdx == nil {
		return nil
	}
	idx := *e.cfg.FixChainIdx
	total := e.model.Chains()[idx].TotalName()
	// Measure the isolated integral at unit total coupling.
	e.vec.SetRaw(total+"r", 1)
	e.vec.SetRaw(total+"i", 0)
	iso, err := e.normIntegral(ctx, []int{idx})
	if err != nil {
		return err
	}
	if iso <= 0 {
		return &DensityError{Sample: e.cfg.Phsp.Name, Event: -1, Value: iso, Params: e.vec.Snapshot()}
	}
	e.vec.SetRaw(total+"r", math.Sqrt(e.cfg.FixChainVal/iso))
	return nil
}

// normIntegral estimates the rate integral as the weighted Monte Carlo
// average over the efficiency-corrected phase-space sample, blended with the
// injected-MC sample when configured. include narrows to a chain subset.
func (e *Engine) normIntegral(ctx context.Context, include []int) (float64, error) {
	phsp, err := e.weightedRateMean(ctx, e.cfg.Phsp, include)
	if err != nil {
		return 0, err
	}
	if e.cfg.InMC == nil || e.cfg.InjectRatio == 0 {
		return phsp, nil
	}
	inmc, err := e.weightedRateMean(ctx, e.cfg.InMC, include)
	if err != nil {
		return 0, err
	}
	return e.cfg.Inject.Norm(phsp, inmc, e.cfg.InjectRatio), nil
}

// weightedLogSum returns sum_i w_i log(rate_i) over the sample.
func (e *Engine) weightedLogSum(ctx context.Context, s *PreparedSample) (float64, error) {
	sums, err := e.parallelReduce(ctx, s, func(rate, w float64) (float64, bool) {
		if rate <= 0 {
			return 0, false
		}
		return w * math.Log(rate), true
	})
	return sums, err
}

// weightedRateMean returns sum(w*rate)/sum(w) over the sample for the chain
// subset.
func (e *Engine) weightedRateMean(ctx context.Context, s *PreparedSample, include []int) (float64, error) {
	sum, err := e.parallelReduceSubset(ctx, s, include, func(rate, w float64) (float64, bool) {
		return w * rate, true
	})
	if err != nil {
		return 0, err
	}
	sw := s.SumWeights()
	if sw == 0 {
		return 0, fmt.Errorf("sample %q has zero total weight", s.Name)
	}
	return sum / sw, nil
}

func (e *Engine) parallelReduce(ctx context.Context, s *PreparedSample, f func(rate, w float64) (float64, bool)) (float64, error) {
	return e.parallelReduceSubset(ctx, s, nil, f)
}

// parallelReduceSubset evaluates the model rate on every event of the
// sample across a bounded worker pool and folds f over (rate, weight).
// f returning false flags a non-positive density for that event.
func (e *Engine) parallelReduceSubset(ctx context.Context, s *PreparedSample, include []int, f func(rate, w float64) (float64, bool)) (float64, error) {
	n := len(s.Kin)
	workers := e.cfg.Workers
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers
	partial := make([]float64, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo, hi := w*chunk, (w+1)*chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			var acc float64
			for i := lo; i < hi; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				rate := e.model.IntensitySubset(e.vec, &s.Kin[i], include)
				v, ok := f(rate, s.Weights[i])
				if !ok {
					return &DensityError{Sample: s.Name, Event: s.SourceIndex(i), Value: rate, Params: e.vec.Snapshot()}
				}
				acc += v
			}
			partial[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var sum float64
	for _, p := range partial {
		sum += p
	}
	return sum, nil
}

// Densities returns the normalized per-event density of a prepared sample
// under the current parameters, for export to plotting.
func (e *Engine) Densities(ctx context.Context, s *PreparedSample) ([]float64, error) {
	if err := e.applyChainNorm(ctx); err != nil {
		return nil, err
	}
	norm, err := e.normIntegral(ctx, nil)
	if err != nil {
		return nil, err
	}
	if norm <= 0 {
		return nil, &DensityError{Sample: s.Name, Event: -1, Value: norm, Params: e.vec.Snapshot()}
	}
	out := make([]float64, len(s.Kin))
	for i := range s.Kin {
		out[i] = e.model.Intensity(e.vec, &s.Kin[i]) / norm
	}
	return out, nil
}

// FitFractions returns each chain's share of the total predicted rate,
// integrated over the no-efficiency phase-space sample when available.
// Interference makes the shares sum away from one.
func (e *Engine) FitFractions(ctx context.Context) ([]float64, error) {
	if err := e.applyChainNorm(ctx); err != nil {
		return nil, err
	}
	sample := e.cfg.Phsp
	if e.cfg.PhspNoEff != nil {
		sample = e.cfg.PhspNoEff
	}
	total, err := e.weightedRateMean(ctx, sample, nil)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, &DensityError{Sample: sample.Name, Event: -1, Value: total, Params: e.vec.Snapshot()}
	}
	out := make([]float64, len(e.model.Chains()))
	for ci := range out {
		iso, err := e.weightedRateMean(ctx, sample, []int{ci})
		if err != nil {
			return nil, err
		}
		out[ci] = iso / total
	}
	return out, nil
}
