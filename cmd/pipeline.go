package cmd

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/pwfit/internal/amplitude"
	"github.com/zjrosen/pwfit/internal/cachemanager"
	"github.com/zjrosen/pwfit/internal/config"
	"github.com/zjrosen/pwfit/internal/dataio"
	"github.com/zjrosen/pwfit/internal/decay"
	"github.com/zjrosen/pwfit/internal/kinematics"
	"github.com/zjrosen/pwfit/internal/likelihood"
	"github.com/zjrosen/pwfit/internal/log"
	"github.com/zjrosen/pwfit/internal/params"
	"github.com/zjrosen/pwfit/internal/particle"
	"github.com/zjrosen/pwfit/internal/tracing"
)

// session is the assembled fit pipeline shared by the subcommands: parsed
// config, built chains, parameter vector, model, and (when requested)
// prepared samples.
type session struct {
	cfg      *config.Config
	reg      *particle.Registry
	chains   []*decay.Chain
	model    *amplitude.Model
	vec      *params.Vector
	samples  map[dataio.Role]*likelihood.PreparedSample
	provider *tracing.Provider
}

// kinCache survives across watch reloads within one process; sample
// kinematics depend only on the event files and the chain set.
var kinCache = cachemanager.NewInMemoryCacheManager[string, *likelihood.PreparedSample](
	"kinematics", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)

// buildSession loads the config and builds the static fit structures.
// withSamples additionally loads the event files and computes kinematics.
func buildSession(ctx context.Context, withSamples bool) (*session, error) {
	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:  viper.GetString("trace") != "",
		Exporter: viper.GetString("trace"),
		FilePath: viper.GetString("trace-file"),
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	tracer := provider.Tracer()

	ctx, span := tracer.Start(ctx, "pipeline.build")
	defer span.End()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}
	chains, err := decay.Build(reg, cfg.GraphSpec())
	if err != nil {
		return nil, err
	}
	vec := params.BuildVector(chains)
	if err := params.Apply(vec, cfg.Constraints(), chains); err != nil {
		return nil, err
	}

	s := &session{
		cfg:      cfg,
		reg:      reg,
		chains:   chains,
		model:    amplitude.New(chains),
		vec:      vec,
		provider: provider,
	}
	if !withSamples {
		return s, nil
	}
	if err := s.prepareSamples(ctx, tracer); err != nil {
		return nil, err
	}
	return s, nil
}

// prepareSamples loads every declared sample and computes its per-chain
// kinematics, read-through cached per config path and role.
func (s *session) prepareSamples(ctx context.Context, tracer trace.Tracer) error {
	ctx, span := tracer.Start(ctx, "pipeline.prepare_samples")
	defer span.End()

	samples, err := s.cfg.LoadSamples()
	if err != nil {
		return err
	}
	opts := s.cfg.KinematicsOptions()

	prepare := cachemanager.NewReadThroughCache(kinCache,
		func(_ context.Context, sample *dataio.Sample) (*likelihood.PreparedSample, error) {
			start := time.Now()
			kin, kept, err := kinematics.PrepareSample(s.chains, sample.Events, opts)
			if err != nil {
				return nil, fmt.Errorf("%s sample: %w", sample.Role, err)
			}
			weights := make([]float64, len(kept))
			for i, idx := range kept {
				weights[i] = sample.Weights[idx]
			}
			log.Info(log.CatKin, "sample prepared",
				"role", sample.Role.String(),
				"events", len(kin),
				"dropped", len(sample.Events)-len(kin),
				"elapsed", time.Since(start).String())
			return &likelihood.PreparedSample{
				Name:     sample.Name,
				Role:     sample.Role,
				Kin:      kin,
				Weights:  weights,
				Fraction: sample.Fraction,
				Src:      kept,
			}, nil
		}, viper.GetBool("no-cache"))

	s.samples = make(map[dataio.Role]*likelihood.PreparedSample, len(samples))
	fingerprint := chainSetKey(s.chains)
	for _, sample := range samples {
		key := s.cfg.Path + "#" + fingerprint + "#" + sample.Role.String()
		prepared, err := prepare.Get(ctx, key, sample, cachemanager.DefaultExpiration)
		if err != nil {
			return err
		}
		s.samples[sample.Role] = prepared
	}
	return nil
}

// chainSetKey fingerprints the chain set. Cached kinematics depend on the
// chains, not just the config path, so a watch-driven reload with an edited
// decay section must miss the cache.
func chainSetKey(chains []*decay.Chain) string {
	h := fnv.New64a()
	for _, c := range chains {
		_, _ = h.Write([]byte(c.Name()))
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// engine assembles the likelihood engine from the prepared session.
// workers bounds evaluation parallelism; zero means GOMAXPROCS.
func (s *session) engine(workers int) (*likelihood.Engine, error) {
	inject, err := likelihood.NewInjectStrategy(s.cfg.Data.InjectStrategy)
	if err != nil {
		return nil, err
	}
	cfg := likelihood.Config{
		Model:       s.model,
		Vec:         s.vec,
		Data:        s.samples[dataio.RoleData],
		Phsp:        s.samples[dataio.RolePhsp],
		PhspNoEff:   s.samples[dataio.RolePhspNoEff],
		Bg:          s.samples[dataio.RoleBg],
		InMC:        s.samples[dataio.RoleInMC],
		BgWeight:    s.cfg.Data.BgWeight,
		InjectRatio: s.cfg.Data.InjectRatio,
		Inject:      inject,
		FixChainIdx: s.cfg.Constrain.FixChainIdx,
		Workers:     workers,
		Tracer:      s.provider.Tracer(),
	}
	if s.cfg.Constrain.FixChainVal != nil {
		cfg.FixChainVal = *s.cfg.Constrain.FixChainVal
	}
	return likelihood.NewEngine(cfg)
}

// shutdown flushes tracing.
func (s *session) shutdown(ctx context.Context) {
	if err := s.provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatFit, "trace shutdown failed", err)
	}
}
