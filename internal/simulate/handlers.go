// Package simulate provides stand-in handlers for every task kind, so the
// scheduler can be exercised end to end without the media, upload and
// analytics services behind the real handlers.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/viralshorts/automation/internal/scheduler"
)

// ErrSimulatedFailure is returned, wrapped as transient, by handlers that
// roll a failure.
var ErrSimulatedFailure = errors.New("simulated failure")

// Options control the simulated handlers.
type Options struct {
	Latency     time.Duration // Time each attempt takes
	FailureRate float64       // Chance in [0,1] an attempt fails transiently
	Seed        uint64        // Fixes the failure and score rolls when non-zero
}

// Registrar is anything handlers can be registered on.
type Registrar interface {
	RegisterHandler(kind scheduler.Kind, h scheduler.Handler)
}

// Register installs a simulated handler for every kind.
func Register(r Registrar, opts Options) {
	sim := New(opts)
	for _, kind := range scheduler.Kinds() {
		r.RegisterHandler(kind, sim.Handler(kind))
	}
}

// Simulator holds the shared random source of the simulated handlers.
type Simulator struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a simulator.
func New(opts Options) *Simulator {
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulator{opts: opts, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Simulator) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Handler returns the simulated handler for kind.
func (s *Simulator) Handler(kind scheduler.Kind) scheduler.Handler {
	var work func(req scheduler.Request) scheduler.Result
	switch kind {
	case scheduler.KindDiscovery:
		work = s.discover
	case scheduler.KindBatchProcessing:
		work = s.process
	case scheduler.KindPublishScheduling:
		work = s.publish
	case scheduler.KindAnalysis:
		work = s.analyze
	case scheduler.KindEmergencyContent:
		work = s.emergency
	case scheduler.KindViralOptimization:
		work = s.optimize
	default:
		return scheduler.HandlerFunc(func(context.Context, scheduler.Request) (scheduler.Result, error) {
			return nil, scheduler.Permanent(fmt.Errorf("%w: %s", scheduler.ErrUnknownTaskType, kind))
		})
	}

	return scheduler.HandlerFunc(func(ctx context.Context, req scheduler.Request) (scheduler.Result, error) {
		if s.opts.Latency > 0 {
			timer := time.NewTimer(s.opts.Latency)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if s.opts.FailureRate > 0 && s.float() < s.opts.FailureRate {
			return nil, scheduler.Transient(fmt.Errorf("%s attempt %d: %w", kind, req.Attempt, ErrSimulatedFailure))
		}
		return work(req), nil
	})
}

func (s *Simulator) discover(req scheduler.Request) scheduler.Result {
	n := cast.ToInt(req.Params["max_videos"])
	if n <= 0 {
		n = scheduler.DefaultBatchSize
	}
	threshold := cast.ToFloat64(req.Params["viral_threshold"])

	videos := make([]string, n)
	for i := range videos {
		videos[i] = uuid.NewString()
	}
	return scheduler.Result{"videos": videos, "count": n, "viral_threshold": threshold}
}

func (s *Simulator) process(req scheduler.Request) scheduler.Result {
	var videos []string
	for _, dep := range req.DependencyResults {
		videos = append(videos, cast.ToStringSlice(dep["videos"])...)
	}
	if len(videos) == 0 {
		videos = make([]string, cast.ToInt(req.Params["batch_size"]))
	}

	clips := make([]string, 0, len(videos))
	total := 0.0
	for range videos {
		clips = append(clips, uuid.NewString())
		total += 40 + 60*s.float()
	}
	score := 0.0
	if len(clips) > 0 {
		score = total / float64(len(clips))
	}
	return scheduler.Result{"clips": clips, "processed": len(videos), "viral_score": score}
}

func (s *Simulator) publish(req scheduler.Request) scheduler.Result {
	clips := 0
	score := 0.0
	for _, dep := range req.DependencyResults {
		clips += len(cast.ToStringSlice(dep["clips"]))
		score = max(score, cast.ToFloat64(dep["viral_score"]))
	}
	return scheduler.Result{"scheduled": clips, "viral_score": score}
}

func (s *Simulator) analyze(req scheduler.Request) scheduler.Result {
	published := 0
	for _, dep := range req.DependencyResults {
		published += cast.ToInt(dep["scheduled"])
	}
	return scheduler.Result{"videos_analyzed": published, "insights": 1 + int(4*s.float()), "models_updated": cast.ToBool(req.Params["update_models"])}
}

func (s *Simulator) emergency(req scheduler.Request) scheduler.Result {
	return scheduler.Result{"published": 1, "video_id": uuid.NewString(), "topic": cast.ToString(req.Params["topic"])}
}

func (s *Simulator) optimize(req scheduler.Request) scheduler.Result {
	return scheduler.Result{"optimized": 1 + int(3*s.float())}
}
