package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/binarydiff/matcher/score"
	"github.com/binarydiff/matcher/step"
)

// Config is the hierarchical, per-diff configuration: the declared
// call-graph matching-step list, per-step weight overrides,
// worker-pool size, the basic-block minimum instruction count the
// hash-matching step requires, and whether global similarity excludes
// library functions. Unknown YAML keys are ignored; missing keys keep
// whatever Default() set, since yaml.Unmarshal only ever overwrites the
// fields it finds.
type Config struct {
	StepList                []string            `yaml:"step_list"`
	StepWeights             map[string]float64  `yaml:"step_weights"`
	Workers                 int                 `yaml:"workers"`
	MinHashInstructions     int                 `yaml:"min_hash_instructions"`
	ExcludeLibraryFunctions bool                `yaml:"exclude_library_functions"`
}

// Option customizes a Config after it is loaded or defaulted.
type Option func(cfg *Config)

// Default returns the built-in configuration: the default call-graph step
// order (step.DefaultStepNames), no step-weight overrides (the two fixed
// special cases in score.DefaultStepWeights always apply underneath), one
// worker, the 8-instruction hash-matching floor, and library functions
// excluded from global similarity.
func Default() Config {
	return Config{
		StepList:                step.DefaultStepNames(),
		StepWeights:             map[string]float64{},
		Workers:                 1,
		MinHashInstructions:     8,
		ExcludeLibraryFunctions: true,
	}
}

// Load reads a YAML file at path into Default(), applying opts afterward.
// A missing or empty path is not an error: it returns Default() with opts
// applied — "missing keys fall back to defaults", taken to its limit of an
// entirely missing file.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyOptions(cfg, opts), nil
			}
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	return applyOptions(cfg, opts), nil
}

func applyOptions(cfg Config, opts []Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithWorkers overrides the worker-pool size. A non-positive value is a
// no-op: the batch driver always needs at least one worker.
func WithWorkers(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Workers = n
		}
	}
}

// WithMinHashInstructions overrides the hash-matching step's minimum
// instruction count. A non-positive value is a no-op.
func WithMinHashInstructions(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MinHashInstructions = n
		}
	}
}

// WithStepList overrides the declared call-graph matching-step order. A nil
// or empty slice is a no-op: Diff falls back to Default()'s order rather
// than running with zero steps.
func WithStepList(names []string) Option {
	return func(cfg *Config) {
		if len(names) > 0 {
			cfg.StepList = names
		}
	}
}

// WithStepWeight sets a single named step's scoring weight, leaving every
// other entry untouched.
func WithStepWeight(stepName string, weight float64) Option {
	return func(cfg *Config) {
		if cfg.StepWeights == nil {
			cfg.StepWeights = map[string]float64{}
		}
		cfg.StepWeights[stepName] = weight
	}
}

// WithLibraryFunctionsExcluded toggles whether global similarity excludes
// library functions.
func WithLibraryFunctionsExcluded(exclude bool) Option {
	return func(cfg *Config) {
		cfg.ExcludeLibraryFunctions = exclude
	}
}

// ResolvedSteps builds the ordered call-graph step list cfg.StepList names
// (falling back to step.DefaultStepNames when cfg.StepList is empty, e.g. a
// zero-value Config), substituting manual wherever "function: manual"
// appears in the list.
func (cfg Config) ResolvedSteps(manual []step.ManualAssignment) []step.Step {
	names := cfg.StepList
	if len(names) == 0 {
		names = step.DefaultStepNames()
	}
	return step.StepsByName(names, manual)
}

// ResolvedStepWeights merges cfg's overrides on top of score's two fixed
// special-cased weights (basic-block propagation and call-reference
// matching always apply unless explicitly overridden here).
func (cfg Config) ResolvedStepWeights() score.StepWeights {
	weights := score.DefaultStepWeights()
	for stepName, w := range cfg.StepWeights {
		weights[stepName] = w
	}
	return weights
}
