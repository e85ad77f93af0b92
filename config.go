package csx

import (
	"os"
	"strconv"
	"strings"

	"github.com/jbowman-csx/csx/internal/types"
)

// EncodingType identifies one of the iteration orders CSX searches for
// regular substructure along (spec.md §3, "Pattern descriptor"). It is an
// alias of internal/types.EncodingType so every pipeline stage shares one
// underlying type without the root package creating an import cycle.
type EncodingType = types.EncodingType

const (
	TypeDeltaRun     = types.TypeDeltaRun
	TypeHorizontal   = types.TypeHorizontal
	TypeVertical     = types.TypeVertical
	TypeDiagonal     = types.TypeDiagonal
	TypeAntiDiagonal = types.TypeAntiDiagonal
	TypeBlockRow     = types.TypeBlockRow
	TypeBlockCol     = types.TypeBlockCol
)

// AllEncodingTypes is the set tried when preproc.xform is "all".
var AllEncodingTypes = types.AllEncodingTypes

// Config holds the runtime configuration of spec.md §6, parsed once at
// NewContext and immutable thereafter. Every field corresponds to one
// "key" of the options table; String-keyed access is provided by Set/
// FromEnv for parity with the out-of-scope C-style option-string API.
type Config struct {
	// NumThreads is rt.nr_threads: the worker/partition count.
	NumThreads int
	// CPUAffinity is rt.cpu_affinity: one CPU id per worker. A nil list, or
	// one whose length differs from the worker count, leaves every worker
	// unpinned.
	CPUAffinity []int

	// XformTypes is preproc.xform: the encoding types the selector tries,
	// in the order they are attempted when tied by score. "all" maps to
	// AllEncodingTypes.
	XformTypes []EncodingType

	// SamplingEnabled is preproc.sampling != "off".
	SamplingEnabled bool
	// SamplingPortion is preproc.sampling.portion, in [0,1].
	SamplingPortion float64
	// SamplingMaxWindows is preproc.sampling.nr_samples.
	SamplingMaxWindows int
	// WindowSize is preproc.window_size in non-zeros; 0 means "auto",
	// resolved per-partition to the partition's own nnz (sampling
	// skipped, per spec.md §4.2).
	WindowSize int

	// Symmetric is matrix.symmetric.
	Symmetric bool
	// SplitBlocks is matrix.split_blocks: enables the block-split
	// manipulator of spec.md §4.3.
	SplitBlocks bool
	// FullColInd is matrix.full_colind: selects the absolute 32-bit
	// column-index ctl mode instead of ULEB128 deltas (spec.md §4.4).
	FullColInd bool

	// MinUnitSize/MaxUnitSize bound pattern.size (spec.md §4.2).
	MinUnitSize int
	MaxUnitSize int
	// MinCoverage is the minimum coverage fraction for an instantiation
	// to survive the statistics cut-off (spec.md §4.2).
	MinCoverage float64

	// NewHeuristic selects λ=1 in the scoring function of spec.md §4.3;
	// false selects λ=0 (the "old heuristic").
	NewHeuristic bool
}

// DefaultConfig returns the configuration spec.md §6 documents as defaults:
// min_unit_size=4, max_unit_size=255, min_coverage=0.1, sampling on, the
// new-heuristic scorer, and one worker per available CPU.
func DefaultConfig() Config {
	return Config{
		NumThreads:         0, // 0 resolved to runtime.NumCPU() by Tune
		XformTypes:         AllEncodingTypes,
		SamplingEnabled:    true,
		SamplingPortion:    0.1,
		SamplingMaxWindows: 32,
		WindowSize:         0,
		MinUnitSize:        4,
		MaxUnitSize:        255,
		MinCoverage:        0.1,
		NewHeuristic:       true,
	}
}

// Lambda returns the λ coefficient of the scoring function
// score = encoded_nz - n_patterns - λ·n_deltas (spec.md §4.3).
func (c Config) Lambda() float64 {
	if c.NewHeuristic {
		return 1
	}
	return 0
}

// Set applies a single string key/value option from the spec.md §6 table,
// mutating the receiver. Unknown keys are a recoverable heuristics failure
// (spec.md §7): Set returns an *Error with Code InvalidArg but the
// configuration is otherwise left usable.
func (c *Config) Set(key, value string) error {
	switch key {
	case "rt.nr_threads":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return newError(InvalidArg, "rt.nr_threads: %q is not a non-negative integer", value)
		}
		c.NumThreads = n
	case "rt.cpu_affinity":
		ids, err := parseIntList(value)
		if err != nil {
			return newError(InvalidArg, "rt.cpu_affinity: %v", err)
		}
		c.CPUAffinity = ids
	case "preproc.xform":
		types, err := parseXform(value)
		if err != nil {
			return newError(InvalidArg, "preproc.xform: %v", err)
		}
		c.XformTypes = types
	case "preproc.sampling":
		c.SamplingEnabled = value != "off"
	case "preproc.sampling.portion":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return newError(InvalidArg, "preproc.sampling.portion: %q is not in [0,1]", value)
		}
		c.SamplingPortion = f
	case "preproc.sampling.nr_samples":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return newError(InvalidArg, "preproc.sampling.nr_samples: %q is not a non-negative integer", value)
		}
		c.SamplingMaxWindows = n
	case "preproc.window_size":
		if value == "auto" {
			c.WindowSize = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return newError(InvalidArg, "preproc.window_size: %q is not a positive integer or \"auto\"", value)
		}
		c.WindowSize = n
	case "matrix.symmetric":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return newError(InvalidArg, "matrix.symmetric: %q is not a bool", value)
		}
		c.Symmetric = b
	case "matrix.split_blocks":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return newError(InvalidArg, "matrix.split_blocks: %q is not a bool", value)
		}
		c.SplitBlocks = b
	case "matrix.full_colind":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return newError(InvalidArg, "matrix.full_colind: %q is not a bool", value)
		}
		c.FullColInd = b
	case "matrix.min_unit_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 2 {
			return newError(InvalidArg, "matrix.min_unit_size: %q is not >= 2", value)
		}
		c.MinUnitSize = n
	case "matrix.max_unit_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 2 || n > 255 {
			return newError(InvalidArg, "matrix.max_unit_size: %q is not in [2,255]", value)
		}
		c.MaxUnitSize = n
	case "matrix.min_coverage":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return newError(InvalidArg, "matrix.min_coverage: %q is not in [0,1]", value)
		}
		c.MinCoverage = f
	default:
		return newError(InvalidArg, "unknown option key %q", key)
	}
	return nil
}

// FromEnv overlays options.environment mirrors: RT_NR_THREADS,
// RT_CPU_AFFINITY, PREPROC_XFORM, PREPROC_SAMPLING,
// PREPROC_SAMPLING_PORTION, PREPROC_SAMPLING_NR_SAMPLES,
// PREPROC_WINDOW_SIZE, MATRIX_SYMMETRIC, MATRIX_SPLIT_BLOCKS,
// MATRIX_FULL_COLIND, MATRIX_MIN_UNIT_SIZE, MATRIX_MAX_UNIT_SIZE,
// MATRIX_MIN_COVERAGE - the upper-cased, dot-to-underscore form of each key
// in the spec.md §6 table. Options already set via Set take precedence only
// if FromEnv is called first; later calls win, matching the "parsed at
// init" immutability contract.
func (c *Config) FromEnv() error {
	for _, key := range configKeys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if v, ok := os.LookupEnv(envKey); ok {
			if err := c.Set(key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

var configKeys = []string{
	"rt.nr_threads", "rt.cpu_affinity",
	"preproc.xform", "preproc.sampling", "preproc.sampling.portion",
	"preproc.sampling.nr_samples", "preproc.window_size",
	"matrix.symmetric", "matrix.split_blocks", "matrix.full_colind",
	"matrix.min_unit_size", "matrix.max_unit_size", "matrix.min_coverage",
}

func parseIntList(value string) ([]int, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseXform(value string) ([]EncodingType, error) {
	if value == "all" {
		return AllEncodingTypes, nil
	}
	parts := strings.Split(value, ",")
	out := make([]EncodingType, 0, len(parts))
	for _, p := range parts {
		switch strings.TrimSpace(p) {
		case "horizontal":
			out = append(out, TypeHorizontal)
		case "vertical":
			out = append(out, TypeVertical)
		case "diagonal":
			out = append(out, TypeDiagonal)
		case "anti-diagonal", "antidiagonal":
			out = append(out, TypeAntiDiagonal)
		case "block-row":
			out = append(out, TypeBlockRow)
		case "block-col":
			out = append(out, TypeBlockCol)
		default:
			return nil, newError(InvalidArg, "unknown encoding type %q", p)
		}
	}
	return out, nil
}
