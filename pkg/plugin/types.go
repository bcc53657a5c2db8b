package plugin

import (
	"fmt"
	"time"
)

// State represents the lifecycle state of a plugin, owned by the Manager
type State string

const (
	StateDiscovered State = "discovered"
	StateValidated  State = "validated"
	StateRegistered State = "registered"
	StateEnabled    State = "enabled"
	StateDisabled   State = "disabled"
	StateUnloaded   State = "unloaded"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are possible from s
func (s State) Terminal() bool {
	return s == StateUnloaded || s == StateFailed
}

// live reports whether s holds resources (a handle, possibly a registry
// entry) that must be released before the record may be replaced
func (s State) live() bool {
	switch s {
	case StateValidated, StateRegistered, StateEnabled, StateDisabled:
		return true
	}
	return false
}

// Capability is a (type, name) tag a plugin declares support for.
// Multiple plugins may declare the same capability.
type Capability struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Key returns the index key for this capability ("type:name")
func (c Capability) Key() string {
	return c.Type + ":" + c.Name
}

// ParseCapabilityKey splits a "type:name" key back into a Capability
func ParseCapabilityKey(key string) (Capability, error) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			if i == 0 || i == len(key)-1 {
				break
			}
			return Capability{Type: key[:i], Name: key[i+1:]}, nil
		}
	}
	return Capability{}, fmt.Errorf("invalid capability key: %q (want \"type:name\")", key)
}

// Descriptor is the immutable record describing a registered plugin.
// Once registered, a descriptor is never updated; re-registration of the
// same id is a DuplicateIDError.
type Descriptor struct {
	ID           string
	Version      string
	Author       string
	Capabilities []Capability
	Keywords     []string
	Dependencies map[string]string // id -> semver constraint
}

// Equal reports whether two descriptors carry identical metadata
func (d Descriptor) Equal(other Descriptor) bool {
	if d.ID != other.ID || d.Version != other.Version || d.Author != other.Author {
		return false
	}
	if len(d.Capabilities) != len(other.Capabilities) ||
		len(d.Keywords) != len(other.Keywords) ||
		len(d.Dependencies) != len(other.Dependencies) {
		return false
	}
	for i, c := range d.Capabilities {
		if other.Capabilities[i] != c {
			return false
		}
	}
	for i, kw := range d.Keywords {
		if other.Keywords[i] != kw {
			return false
		}
	}
	for id, constraint := range d.Dependencies {
		if other.Dependencies[id] != constraint {
			return false
		}
	}
	return true
}

// Manifest represents the plugin.json file placed alongside each plugin source
type Manifest struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Author       string            `json:"author,omitempty"`
	Capabilities []Capability      `json:"capabilities"`
	Keywords     []string          `json:"keywords,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Main         string            `json:"main,omitempty"` // executable entry point, optional
}

// Descriptor derives the immutable descriptor from a validated manifest
func (m *Manifest) Descriptor() Descriptor {
	desc := Descriptor{
		ID:      m.ID,
		Version: m.Version,
		Author:  m.Author,
	}
	desc.Capabilities = append(desc.Capabilities, m.Capabilities...)
	desc.Keywords = append(desc.Keywords, m.Keywords...)
	if len(m.Dependencies) > 0 {
		desc.Dependencies = make(map[string]string, len(m.Dependencies))
		for id, constraint := range m.Dependencies {
			desc.Dependencies[id] = constraint
		}
	}
	return desc
}

// SourceKind indicates where a plugin source was discovered
type SourceKind string

const (
	SourceBuiltin   SourceKind = "builtin"
	SourceWorkspace SourceKind = "workspace"
	SourceExtra     SourceKind = "extra"
)

// Source references a candidate plugin found during discovery
type Source struct {
	Name         string // directory name, not necessarily the manifest id
	Path         string
	Kind         SourceKind
	ManifestPath string
}

// Record tracks a plugin known to the Manager
type Record struct {
	Descriptor Descriptor
	Source     Source
	State      State
	LoadedAt   time.Time
	Err        error // cause when State == StateFailed
}

// Result collects the outcome of a batch operation (LoadAll, EnableAll)
type Result struct {
	Enabled []string
	Failed  []string
	Skipped []string
	Errors  map[string]error
}

func newResult() *Result {
	return &Result{
		Enabled: []string{},
		Failed:  []string{},
		Skipped: []string{},
		Errors:  make(map[string]error),
	}
}

func (r *Result) fail(id string, err error) {
	r.Failed = append(r.Failed, id)
	r.Errors[id] = err
}
