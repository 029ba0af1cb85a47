// Package agent runs configured model agents against a cycle's candidates.
// Each agent is backed by a synthetic AI user and a pluggable strategy; its
// picks flow through the same ranked-pick path a human uses, so settlement
// treats both uniformly.
package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
)

// Strategy is the capability set a model agent plugs in: a probability per
// candidate, and a human-readable explanation per (candidate, selected)
// pair. Raw probabilities may be unnormalized; the runner applies the
// normalization contract before use.
type Strategy interface {
	PredictProbabilities(cfg Config, candidates []models.CandidateLink) map[string]float64
	ExplainChoice(cfg Config, candidate models.CandidateLink, probability float64, selected bool) string
}

// Factory builds a strategy instance. Factories are registered at process
// start; unknown identifiers fail config validation, not the run.
type Factory func() Strategy

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a strategy factory under an identifier. Registering the
// same identifier twice panics: it is a programming error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("agent: strategy %q registered twice", name))
	}
	registry[name] = factory
}

// RegisteredStrategies lists the known identifiers, sorted.
func RegisteredStrategies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newStrategy(name string) (Strategy, error) {
	if name == "" {
		name = StrategyDefault
	}
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, ErrUnknownStrategy)
	}
	return factory(), nil
}
