// Package posix runs commands and idempotent file edits on POSIX hosts
// over SSH or locally, falling back to plain shell utilities when the host
// has no usable interpreter.
package posix

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/creasty/defaults"
	"github.com/o0-o/posix/exec"
	"gopkg.in/yaml.v3"
)

// Host is an inventory entry.
type Host struct {
	Name        string          `yaml:"name"`
	Connection  CompositeConfig `yaml:"connection"`
	Interpreter string          `yaml:"interpreter,omitempty" default:"python3"`
	ForceRaw    bool            `yaml:"forceRaw,omitempty"`
}

// SetDefaults sets the default values.
func (h *Host) SetDefaults() error {
	if err := defaults.Set(h); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	if err := h.Connection.SetDefaults(); err != nil {
		return fmt.Errorf("host %s: %w", h, err)
	}
	return nil
}

// Validate the host configuration.
func (h *Host) Validate() error {
	if err := h.Connection.Validate(); err != nil {
		return fmt.Errorf("host %s: %w", h, err)
	}
	return nil
}

// String returns the name of the host, or its connection when unnamed.
func (h *Host) String() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Connection.String()
}

// SessionOptions returns the session options for the host.
func (h *Host) SessionOptions() []exec.SessionOption {
	return []exec.SessionOption{exec.WithInterpreter(h.Interpreter), exec.WithForceRaw(h.ForceRaw)}
}

// Inventory is a set of hosts.
type Inventory struct {
	Hosts []*Host `yaml:"hosts"`
}

// LoadInventory decodes and validates an inventory in YAML format.
// Unknown keys are rejected.
func LoadInventory(r io.Reader) (*Inventory, error) {
	inv := &Inventory{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, ErrValidationFailed.Wrapf("decode inventory: %w", err)
	}
	seen := make(map[string]struct{}, len(inv.Hosts))
	for i, h := range inv.Hosts {
		if h == nil {
			return nil, ErrValidationFailed.Wrapf("host #%d is empty", i+1)
		}
		if err := h.SetDefaults(); err != nil {
			return nil, ErrValidationFailed.Wrap(err)
		}
		if err := h.Validate(); err != nil {
			return nil, ErrValidationFailed.Wrap(err)
		}
		name := h.String()
		if _, ok := seen[name]; ok {
			return nil, ErrValidationFailed.Wrapf("duplicate host %s", name)
		}
		seen[name] = struct{}{}
	}
	return inv, nil
}

// Names returns the sorted host names.
func (i *Inventory) Names() []string {
	names := make([]string, 0, len(i.Hosts))
	for _, h := range i.Hosts {
		names = append(names, h.String())
	}
	sort.Strings(names)
	return names
}

// Select returns the named hosts in the given order. All hosts are
// returned when no names are given.
func (i *Inventory) Select(names ...string) ([]*Host, error) {
	if len(names) == 0 {
		return i.Hosts, nil
	}
	byName := make(map[string]*Host, len(i.Hosts))
	for _, h := range i.Hosts {
		byName[h.String()] = h
	}
	hosts := make([]*Host, 0, len(names))
	for _, n := range names {
		h, ok := byName[n]
		if !ok {
			return nil, ErrHostNotFound.Wrapf("%s", n)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
