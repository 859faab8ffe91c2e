// Package exposure finds a camera exposure time that drives the sensor
// readout to a target brightness.
package exposure

import (
	"context"
	"math"
)

// Outcome describes how the search arrived at its chosen exposure.
type Outcome string

const (
	// OutcomeWithinTolerance means a trial landed within tolerance of target.
	OutcomeWithinTolerance Outcome = "within_tolerance"
	// OutcomeBestEffort means no trial met tolerance; the closest one was used.
	OutcomeBestEffort Outcome = "best_effort"
	// OutcomeFallback means every trial failed and the configured fallback
	// exposure was returned.
	OutcomeFallback Outcome = "fallback"
)

// DefaultTolerance is the accepted fractional deviation from target.
const DefaultTolerance = 0.15

// AcquireFunc captures a test frame at the given exposure and returns the
// mean brightness of the central sensor region. The capability is expected to
// retry transient failures internally before reporting an error.
type AcquireFunc func(ctx context.Context, exposureMs float64) (float64, error)

// Bounds limits the exposures the search may try.
type Bounds struct {
	MinMs      float64
	MaxMs      float64
	FallbackMs float64
}

func (b Bounds) normalized() Bounds {
	if b.MinMs < 1 {
		b.MinMs = 1
	}
	if b.MaxMs < b.MinMs {
		b.MaxMs = b.MinMs
	}
	if b.FallbackMs <= 0 {
		b.FallbackMs = b.MaxMs
	}
	return b
}

// Trial records one acquisition attempt.
type Trial struct {
	ExposureMs float64
	Brightness float64
	OK         bool
	Error      string
}

// Result is the outcome of one search invocation.
type Result struct {
	ChosenExposureMs   float64
	AchievedBrightness float64
	Outcome            Outcome
	Trials             []Trial
}

// The coarse ladder walked in phase 1, before clipping to the configured
// bounds.
var coarseLadder = []float64{1, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000, 30000}

// FindExposure runs the two-phase bounding search.
//
// Phase 1 walks the coarse ladder recording the highest exposure still below
// target and the lowest at or above it, stopping early once both bounds are
// known. Phase 2 tests intermediate candidates between the bounds, with step
// size scaled to the gap. The first trial within tolerance ends the search;
// failed trials are recorded and skipped, never aborting the search.
func FindExposure(ctx context.Context, bounds Bounds, targetBrightness, tolerance float64, acquire AcquireFunc) Result {
	bounds = bounds.normalized()
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	s := &search{
		target:    targetBrightness,
		tolerance: tolerance,
		acquire:   acquire,
		bestDiff:  math.Inf(1),
	}

	// Phase 1: bound finding.
	var lowerBound, upperBound *float64
	for _, candidate := range coarseLadder {
		if candidate < bounds.MinMs || candidate > bounds.MaxMs {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		brightness, ok := s.test(ctx, candidate)
		if !ok {
			continue
		}
		if s.withinTolerance(brightness) {
			return s.result(candidate, brightness, OutcomeWithinTolerance)
		}
		if brightness < targetBrightness {
			c := candidate
			lowerBound = &c
		} else {
			c := candidate
			upperBound = &c
			if lowerBound != nil {
				break
			}
		}
	}

	// Phase 2: refinement between the bounds.
	if lowerBound != nil && upperBound != nil && ctx.Err() == nil {
		for _, candidate := range refinementCandidates(*lowerBound, *upperBound) {
			if ctx.Err() != nil {
				break
			}
			brightness, ok := s.test(ctx, candidate)
			if !ok {
				continue
			}
			if s.withinTolerance(brightness) {
				return s.result(candidate, brightness, OutcomeWithinTolerance)
			}
		}
	}

	if s.bestSet {
		return s.result(s.bestExposure, s.bestBrightness, OutcomeBestEffort)
	}
	return s.result(bounds.FallbackMs, 0, OutcomeFallback)
}

type search struct {
	target    float64
	tolerance float64
	acquire   AcquireFunc
	trials    []Trial

	bestSet        bool
	bestExposure   float64
	bestBrightness float64
	bestDiff       float64
}

// test runs one trial, recording it and tracking the best-seen candidate.
// Only strict improvements overwrite the best, so the earlier of two equally
// good trials wins.
func (s *search) test(ctx context.Context, exposureMs float64) (float64, bool) {
	brightness, err := s.acquire(ctx, exposureMs)
	if err != nil {
		s.trials = append(s.trials, Trial{ExposureMs: exposureMs, Error: err.Error()})
		return 0, false
	}
	s.trials = append(s.trials, Trial{ExposureMs: exposureMs, Brightness: brightness, OK: true})

	diff := s.ratioDiff(brightness)
	if diff < s.bestDiff {
		s.bestDiff = diff
		s.bestExposure = exposureMs
		s.bestBrightness = brightness
		s.bestSet = true
	}
	return brightness, true
}

func (s *search) ratioDiff(brightness float64) float64 {
	return math.Abs(brightness/s.target - 1)
}

func (s *search) withinTolerance(brightness float64) bool {
	return s.ratioDiff(brightness) < s.tolerance
}

func (s *search) result(exposureMs, brightness float64, outcome Outcome) Result {
	return Result{
		ChosenExposureMs:   exposureMs,
		AchievedBrightness: brightness,
		Outcome:            outcome,
		Trials:             s.trials,
	}
}

// refinementCandidates generates exposures strictly between the bounds.
// Large gaps use 10 ms steps, medium gaps 1 ms, small gaps 0.5 ms.
func refinementCandidates(lower, upper float64) []float64 {
	gap := upper - lower
	var step float64
	switch {
	case gap > 100:
		step = math.Min(10, math.Floor(gap/10))
	case gap > 10:
		step = 1
	default:
		step = 0.5
	}
	var candidates []float64
	for c := lower + step; c < upper; c += step {
		candidates = append(candidates, c)
	}
	return candidates
}
