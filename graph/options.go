package graph

import "time"

// Option configures a Config via NewConfig. Functional options keep the
// zero-config path usable (NewConfig() alone yields sane defaults) while
// letting callers override only what they need.
type Option func(*Config)

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxSteps:             1000,
		MaxConcurrent:        8,
		ContextWindowPercent: 0.9,
		Metadata:             make(map[string]any),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithCheckpointer(c Checkpointer) Option {
	return func(cfg *Config) { cfg.Checkpointer = c }
}

func WithDefaultModel(model string) Option {
	return func(cfg *Config) { cfg.DefaultModel = model }
}

func WithOutputSchema(s *ValidationSchema) Option {
	return func(cfg *Config) { cfg.OutputSchema = s }
}

func WithMaxConcurrent(n int) Option {
	return func(cfg *Config) { cfg.MaxConcurrent = n }
}

func WithMaxSteps(n int) Option {
	return func(cfg *Config) { cfg.MaxSteps = n }
}

func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) { cfg.Timeout = d }
}

func WithContextWindowThreshold(pct float64) Option {
	return func(cfg *Config) { cfg.ContextWindowPercent = pct }
}

func WithAutoCheckpoint(enabled bool) Option {
	return func(cfg *Config) { cfg.AutoCheckpoint = enabled }
}

func WithProgress(fn func(StepResult)) Option {
	return func(cfg *Config) { cfg.OnProgress = fn }
}

func WithRuntime(deps *RuntimeDeps) Option {
	return func(cfg *Config) { cfg.Runtime = deps }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(cfg *Config) { cfg.Metrics = m }
}

func WithCostTracker(ct *CostTracker) Option {
	return func(cfg *Config) { cfg.CostTracker = ct }
}
