// Package config loads the cardgraph YAML configuration and turns it into
// engine options and a logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/cardgraph/pkg/distance"
	"github.com/sanonone/cardgraph/pkg/engine"
	"github.com/sanonone/cardgraph/pkg/sparsify"
	"github.com/sanonone/cardgraph/pkg/structure"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	AuthToken string `yaml:"auth_token"`
	// RebuildTimeout bounds an asynchronous rebuild. 0 means no limit.
	RebuildTimeout time.Duration `yaml:"rebuild_timeout"`

	Logging LoggingConfig `yaml:"logging"`
	Graph   GraphConfig   `yaml:"graph"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type GraphConfig struct {
	TargetAvgDegree float64 `yaml:"target_avg_degree"`

	TopK      int    `yaml:"top_k"`
	Precision string `yaml:"precision"` // float32, float16
	Language  string `yaml:"language"`  // stop words for the TF-IDF fallback

	Mode            string                          `yaml:"mode"`
	Percolation     threshold.PercolationWeights    `yaml:"percolation"`
	Algebraic       threshold.AlgebraicParams       `yaml:"algebraic"`
	NonBacktracking threshold.NonBacktrackingParams `yaml:"non_backtracking"`

	LightJoin bool             `yaml:"light_join"`
	Sparsify  sparsify.Options `yaml:"sparsify"`

	Links LinksConfig `yaml:"links"`

	Centrality    string                 `yaml:"centrality"` // eigenvector, degree
	Eigen         structure.EigenOptions `yaml:"eigen"`
	IgnoreBridges bool                   `yaml:"ignore_bridges"`

	YieldEvery int `yaml:"yield_every"`
}

type LinksConfig struct {
	Tags   TagLinks    `yaml:"tags"`
	Source SourceLinks `yaml:"source"`
}

type TagLinks struct {
	Enabled                bool `yaml:"enabled"`
	engine.SharedTagPolicy `yaml:",inline"`
}

type SourceLinks struct {
	Enabled                 bool `yaml:"enabled"`
	engine.SameSourcePolicy `yaml:",inline"`
}

// DefaultConfig mirrors engine.DefaultOptions.
func DefaultConfig() Config {
	def := engine.DefaultOptions()
	return Config{
		HTTPAddr:       ":9093",
		RebuildTimeout: 2 * time.Minute,
		Logging:        LoggingConfig{Level: "info", Format: "text"},
		Graph: GraphConfig{
			TargetAvgDegree: def.TargetAvgDegree,
			TopK:            def.Similarity.TopK,
			Precision:       string(def.Similarity.Precision),
			Language:        def.Similarity.Language,
			Mode:            string(def.Threshold.Mode),
			Percolation:     def.Threshold.Percolation,
			Algebraic:       def.Threshold.Algebraic,
			NonBacktracking: def.Threshold.NonBacktracking,
			LightJoin:       true,
			Sparsify:        def.Sparsify,
			Links: LinksConfig{
				Tags:   TagLinks{Enabled: true, SharedTagPolicy: engine.SharedTagPolicy{MinShared: 1, MaxGroup: 200, MaxPerNode: 5}},
				Source: SourceLinks{Enabled: true, SameSourcePolicy: engine.SameSourcePolicy{Weight: 0.5}},
			},
			Centrality: string(structure.CentralityEigenvector),
			Eigen:      structure.DefaultEigenOptions(),
			YieldEvery: def.YieldEvery,
		},
	}
}

// LoadConfig reads the YAML configuration file using strict parsing. Missing
// keys keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	if err := Decode(file, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode strictly decodes YAML from r on top of cfg and validates the result.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("YAML syntax error in config: %w", err)
	}
	return cfg.Validate()
}

// Validate rejects values that cannot be clamped into a meaningful range.
func (c *Config) Validate() error {
	if _, err := threshold.ParseMode(c.Graph.Mode); err != nil {
		return err
	}
	if _, err := distance.ParsePrecision(c.Graph.Precision); err != nil {
		return err
	}
	if _, err := structure.ParseCentrality(c.Graph.Centrality); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Graph.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", c.Graph.TopK)
	}
	if c.Graph.TargetAvgDegree < 0 {
		return fmt.Errorf("target_avg_degree must not be negative, got %g", c.Graph.TargetAvgDegree)
	}
	return nil
}

// EngineOptions converts the graph section. Out-of-range tunables are clamped:
// target_avg_degree to [0.5, 4] and max_joined_fraction to [0.3, 0.95].
func (c Config) EngineOptions(logger *slog.Logger) (engine.Options, error) {
	if err := c.Validate(); err != nil {
		return engine.Options{}, err
	}
	g := c.Graph
	opts := engine.DefaultOptions()
	opts.Logger = logger

	opts.TargetAvgDegree = threshold.ClampTarget(g.TargetAvgDegree)
	opts.Similarity.TopK = g.TopK
	opts.Similarity.Precision, _ = distance.ParsePrecision(g.Precision)
	opts.Similarity.Language = g.Language

	opts.Threshold.Mode, _ = threshold.ParseMode(g.Mode)
	opts.Threshold.Percolation = g.Percolation
	opts.Threshold.Algebraic = g.Algebraic
	opts.Threshold.NonBacktracking = g.NonBacktracking

	opts.SkipLightJoin = !g.LightJoin
	opts.Sparsify = g.Sparsify
	opts.Sparsify.MaxJoinedFraction = sparsify.ClampJoinedFraction(g.Sparsify.MaxJoinedFraction)

	opts.Policies = nil
	if g.Links.Tags.Enabled {
		opts.Policies = append(opts.Policies, g.Links.Tags.SharedTagPolicy)
	}
	if g.Links.Source.Enabled {
		opts.Policies = append(opts.Policies, g.Links.Source.SameSourcePolicy)
	}

	opts.Structure.Centrality, _ = structure.ParseCentrality(g.Centrality)
	opts.Structure.Eigen = g.Eigen
	opts.Structure.IgnoreBridges = g.IgnoreBridges
	opts.YieldEvery = g.YieldEvery
	return opts, nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log level '%s' not supported", s)
}

// NewLogger builds the process logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
