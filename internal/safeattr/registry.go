// Package safeattr implements the Safe-Attribute Registry: a process-wide,
// read-mostly table of `(type, attribute) -> {allowed, capabilities_required}`
// populated once at startup. The registry itself is only ever consulted by
// the generated HTL program's own `safe_attr_access` runtime helper - the
// Go-side Registry's job is to build that table and serialize it into the
// generated module so the check happens where the attribute read actually
// executes, not at transpile time. Member *writes* bypass the gate entirely
// - this asymmetry is load bearing and must not be "fixed".
package safeattr

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"vaultlang/internal/obslog"
)

// Entry describes one allowed attribute name, the receiver type(s) it
// applies to, and the capabilities (if any) a caller must hold to read it
// even once `allowed` is true. An empty Types list means the attribute is
// allowed on any receiver. An empty CapabilitiesRequired means the read is
// ungated beyond the allow-list itself.
type Entry struct {
	Name                 string   `yaml:"name"`
	Types                []string `yaml:"types,omitempty"`
	CapabilitiesRequired []string `yaml:"capabilities_required,omitempty"`
}

type fileFormat struct {
	Attributes []Entry `yaml:"attributes"`
}

// Registry is a read-mostly, process-wide table of safe attribute reads. It
// is populated once at startup (or per-compile for test isolation) and
// serialized wholesale into every generated module so the HTL runtime's
// `safe_attr_access` helper can consult it on each attribute read.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty registry. Use Load or LoadDefault to populate it.
func New() *Registry {
	return &Registry{}
}

// LoadDefault returns the registry seeded with the built-in safe attribute
// set shipped alongside the binary: a baseline allow-list of length,
// value-access, and iteration-support attributes common to arrays, strings,
// and objects.
func LoadDefault() *Registry {
	r := New()
	for _, e := range builtinEntries {
		r.add(e)
	}
	return r
}

// Load reads a YAML safe-attribute manifest and merges it into the
// built-in set. A project may ship a `.vaultlang/safe_attrs.yaml` to extend
// (never shrink) the baseline allow-list.
func Load(path string) (*Registry, error) {
	r := LoadDefault()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("safeattr: reading %s: %w", path, err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("safeattr: parsing %s: %w", path, err)
	}
	for _, e := range ff.Attributes {
		r.add(e)
	}
	obslog.Get(obslog.CategoryCodegen).Info("loaded %d safe-attribute entries from %s", len(ff.Attributes), path)
	return r, nil
}

func (r *Registry) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// IsSafe reports whether attribute name may be read on a value of the given
// static type, ignoring any capabilities_required on the matching entry.
// This mirrors the check the HTL runtime's safe_attr_access performs on the
// `allowed` half of the table; it exists on the Go side only for tests and
// tooling that want to reason about the registry's contents directly - it
// is never used to gate code generation itself, since the registry is a
// runtime-consulted table, not a compile-time filter.
func (r *Registry) IsSafe(name, receiverType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Name != name {
			continue
		}
		if len(e.Types) == 0 {
			return true
		}
		for _, t := range e.Types {
			if t == receiverType {
				return true
			}
		}
	}
	return false
}

// CapabilitiesRequired returns the capability set required to read name on
// receiverType, per the first matching entry. A nil result means the read
// needs no capability beyond being on the allow-list at all.
func (r *Registry) CapabilitiesRequired(name, receiverType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Name != name {
			continue
		}
		if len(e.Types) == 0 {
			return e.CapabilitiesRequired
		}
		for _, t := range e.Types {
			if t == receiverType {
				return e.CapabilitiesRequired
			}
		}
	}
	return nil
}

// Entries returns a snapshot of every registered entry, in registration
// order, for embedding into generated code's runtime registration call.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// builtinEntries is the baseline safe-read allow-list. It intentionally
// excludes anything that could expose host internals (e.g. no reflection
// metadata, no __dunder__-style attributes).
var builtinEntries = []Entry{
	{Name: "length"},
	{Name: "size"},
	{Name: "keys", Types: []string{"object"}},
	{Name: "values", Types: []string{"object"}},
	{Name: "first", Types: []string{"array"}},
	{Name: "last", Types: []string{"array"}},
}
