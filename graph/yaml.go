package graph

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/backoff"
	"github.com/xraph/caseflow/retry"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/stage"
)

// StageConfig overrides a registered stage's failure policy. Zero fields
// keep the registered value.
type StageConfig struct {
	Fatal      *bool         `yaml:"fatal"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    string        `yaml:"backoff"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c StageConfig) touchesRetry() bool {
	return c.MaxRetries > 0 || c.Backoff != "" || c.BaseDelay > 0 || c.Multiplier > 0 || c.MaxDelay > 0
}

// EdgeConfig is an unconditional transition.
type EdgeConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// File is a declarative pipeline definition:
//
//	entry: collect
//	groups:
//	  analysis: [rights, location]
//	stages:
//	  collect: {fatal: true}
//	  rights: {max_retries: 5, base_delay: 500ms, timeout: 90s}
//	edges:
//	  - {from: analysis, to: valuation}
//
// Nodes whose successor depends on state are routed in code; see Builder.
type File struct {
	Entry  string                 `yaml:"entry"`
	Stages map[string]StageConfig `yaml:"stages"`
	Groups map[string][]string    `yaml:"groups"`
	Edges  []EdgeConfig           `yaml:"edges"`
}

// LoadYAML decodes a pipeline definition. Unknown keys are rejected so
// typos surface at startup.
func LoadYAML(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode yaml: %w", caseflow.ErrInvalidGraph, err)
	}
	return &f, nil
}

// Apply pushes per-stage overrides into reg. Defaults for unset retry
// fields come from the stage's current policy, or cfg.
func (f *File) Apply(reg *stage.Registry, cfg caseflow.Config) error {
	for _, name := range sortedKeys(f.Stages) {
		sc := f.Stages[name]
		def, ok := reg.Get(name)
		if !ok {
			return fmt.Errorf("%w: override for unknown stage %q", caseflow.ErrInvalidGraph, name)
		}

		var opts []stage.Option
		if sc.Fatal != nil {
			opts = append(opts, stage.WithFatal(*sc.Fatal))
		}
		if sc.Timeout > 0 {
			opts = append(opts, stage.WithTimeout(sc.Timeout))
		}
		if sc.touchesRetry() {
			p, err := overridePolicy(def.PolicyOr(retry.FromConfig(cfg)), sc, cfg)
			if err != nil {
				return fmt.Errorf("%w: stage %q: %w", caseflow.ErrInvalidGraph, name, err)
			}
			opts = append(opts, stage.WithRetry(p))
		}
		if len(opts) == 0 {
			continue
		}
		if err := reg.Override(name, opts...); err != nil {
			return err
		}
	}
	return nil
}

func overridePolicy(p retry.Policy, sc StageConfig, cfg caseflow.Config) (retry.Policy, error) {
	if sc.MaxRetries > 0 {
		p.MaxRetries = sc.MaxRetries
	}
	if sc.Backoff == "" && sc.BaseDelay == 0 && sc.Multiplier == 0 && sc.MaxDelay == 0 {
		return p, nil
	}

	base, mult, maxDelay := cfg.BaseDelay, cfg.Multiplier, cfg.MaxDelay
	if sc.BaseDelay > 0 {
		base = sc.BaseDelay
	}
	if sc.Multiplier > 0 {
		mult = sc.Multiplier
	}
	if sc.MaxDelay > 0 {
		maxDelay = sc.MaxDelay
	}
	strategy, err := backoff.Parse(sc.Backoff, base, mult, maxDelay)
	if err != nil {
		return p, err
	}
	p.Backoff = strategy
	return p, nil
}

// Builder returns a builder pre-populated with the file's nodes and
// edges. Stages listed as group members are not added as standalone
// nodes. Callers attach the remaining routes and call Build.
func (f *File) Builder() *Builder {
	b := NewBuilder(f.Entry)

	grouped := make(map[string]bool)
	for _, group := range sortedKeys(f.Groups) {
		members := f.Groups[group]
		b.Parallel(group, members...)
		for _, m := range members {
			grouped[m] = true
		}
	}

	nodes := sortedKeys(f.Stages)
	for _, e := range append([]EdgeConfig{{From: f.Entry}}, f.Edges...) {
		for _, n := range []string{e.From, e.To} {
			if _, isGroup := f.Groups[n]; !isGroup && !slices.Contains(nodes, n) {
				nodes = append(nodes, n)
			}
		}
	}
	for _, n := range nodes {
		if grouped[n] || n == "" {
			continue
		}
		if _, isGroup := f.Groups[n]; isGroup || n == router.Terminal {
			continue
		}
		b.Stage(n)
	}

	for _, e := range f.Edges {
		b.Edge(e.From, e.To)
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
