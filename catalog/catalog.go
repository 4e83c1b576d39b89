// Package catalog keeps the set of known event types and their optional
// payload schemas.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownType is returned by Lookup for an unregistered name.
var ErrUnknownType = errors.New("catalog: unknown event type")

// Catalog is a concurrency-safe registry of event definitions.
type Catalog struct {
	mu        sync.RWMutex
	defs      map[string]Definition
	validator *Validator
	logger    *slog.Logger
}

// New creates a catalog preloaded with defs.
func New(logger *slog.Logger, defs ...Definition) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		defs:      make(map[string]Definition),
		validator: NewValidator(),
		logger:    logger,
	}
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			logger.Warn("skipping event definition", "name", d.Name, "error", err)
		}
	}
	return c
}

// Register adds or replaces a definition. A schema is compiled up front so
// a broken one is reported here rather than on the first Trigger.
func (c *Catalog) Register(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("catalog: event name is required")
	}
	if len(def.Schema) > 0 {
		if _, err := c.validator.compile(def.Schema); err != nil {
			return fmt.Errorf("catalog: %s: %w", def.Name, err)
		}
	}

	c.mu.Lock()
	c.defs[def.Name] = def
	c.mu.Unlock()
	return nil
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	if !ok {
		return Definition{}, ErrUnknownType
	}
	return def, nil
}

// Known reports whether name is registered.
func (c *Catalog) Known(name string) bool {
	_, err := c.Lookup(name)
	return err == nil
}

// List returns all definitions sorted by name.
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks payload against name's schema. Unknown names and
// definitions without a schema always pass.
func (c *Catalog) Validate(name string, payload []byte) error {
	def, err := c.Lookup(name)
	if err != nil || len(def.Schema) == 0 {
		return nil
	}
	return c.validator.Validate(def.Schema, payload)
}
