package factory

import (
	"fmt"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/model"

	"github.com/charmbracelet/log"
)

// SinkFactory creates a sink from its config definition.
type SinkFactory func(def config.SinkDef) (model.Sink, error)

// registry holds the mapping of sink types to their factory functions.
var registry = make(map[string]SinkFactory)

// RegisterSink registers a new sink type with its factory function.
func RegisterSink(name string, factory SinkFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("sink type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered reports whether a sink type is known.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}

// Create builds every enabled sink in cfg. If one fails, the sinks created
// so far are closed.
func Create(cfg *config.Config) ([]model.Sink, error) {
	var sinks []model.Sink

	for _, def := range cfg.Sinks {
		if !def.Enabled {
			continue
		}
		log.Info("Creating sink", "type", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			CloseAll(sinks)
			return nil, fmt.Errorf("unknown sink type: '%s'", def.Type)
		}

		sink, err := factory(def)
		if err != nil {
			CloseAll(sinks)
			return nil, fmt.Errorf("error creating sink type '%s': %w", def.Type, err)
		}
		sinks = append(sinks, sink)
	}

	return sinks, nil
}

// CloseAll closes every sink, logging failures.
func CloseAll(sinks []model.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Warn("Failed to close sink", "type", s.Name(), "error", err)
		}
	}
}
