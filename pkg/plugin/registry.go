package plugin

import (
	"sort"
	"sync"
)

// Registry owns the canonical descriptor set and the capability/keyword
// indices. Mutations are transactional: a descriptor and all of its index
// entries are added or removed together under one lock, so a concurrent
// reader observes either the pre- or post-mutation state and the
// index/descriptor invariant always holds.
type Registry struct {
	mu           sync.RWMutex
	descriptors  map[string]Descriptor
	byCapability map[string]map[string]struct{} // capability key -> set of ids
	byKeyword    map[string]map[string]struct{} // keyword -> set of ids
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors:  make(map[string]Descriptor),
		byCapability: make(map[string]map[string]struct{}),
		byKeyword:    make(map[string]map[string]struct{}),
	}
}

// Register inserts a descriptor and all of its derived index entries.
// Returns DuplicateIDError if the id already exists; a registered
// descriptor is immutable and never updated in place.
func (r *Registry) Register(desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.ID]; exists {
		return &DuplicateIDError{ID: desc.ID}
	}

	r.descriptors[desc.ID] = desc
	for _, cap := range desc.Capabilities {
		key := cap.Key()
		if r.byCapability[key] == nil {
			r.byCapability[key] = make(map[string]struct{})
		}
		r.byCapability[key][desc.ID] = struct{}{}
	}
	for _, kw := range desc.Keywords {
		if r.byKeyword[kw] == nil {
			r.byKeyword[kw] = make(map[string]struct{})
		}
		r.byKeyword[kw][desc.ID] = struct{}{}
	}

	return nil
}

// Unregister removes a descriptor and scrubs the id from every index set
// it belongs to, deleting any key left empty. Returns NotFoundError if
// the id is unknown.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, exists := r.descriptors[id]
	if !exists {
		return &NotFoundError{ID: id}
	}

	delete(r.descriptors, id)
	for _, cap := range desc.Capabilities {
		key := cap.Key()
		if set := r.byCapability[key]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byCapability, key)
			}
		}
	}
	for _, kw := range desc.Keywords {
		if set := r.byKeyword[kw]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byKeyword, kw)
			}
		}
	}

	return nil
}

// Get retrieves a descriptor by id
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, exists := r.descriptors[id]
	return desc, exists
}

// List returns a snapshot of all descriptors, sorted by id
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortDescriptors(r.snapshotLocked())
}

// Len returns the number of registered descriptors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// FindByCapability returns all descriptors registered under a capability
// key ("type:name"). Unknown keys yield an empty slice, not an error.
func (r *Registry) FindByCapability(key string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byCapability[key])
}

// FindByKeyword returns all descriptors registered under a keyword
func (r *Registry) FindByKeyword(keyword string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byKeyword[keyword])
}

// FindByType returns descriptors declaring at least one capability of the
// given type. Linear scan; plugin counts are expected in the low hundreds.
func (r *Registry) FindByType(capType string) []Descriptor {
	return r.filter(func(d Descriptor) bool {
		for _, cap := range d.Capabilities {
			if cap.Type == capType {
				return true
			}
		}
		return false
	})
}

// FindByAuthor returns descriptors by the given author. Linear scan.
func (r *Registry) FindByAuthor(author string) []Descriptor {
	return r.filter(func(d Descriptor) bool { return d.Author == author })
}

// FindByVersion returns descriptors at the given exact version. Linear scan.
func (r *Registry) FindByVersion(version string) []Descriptor {
	return r.filter(func(d Descriptor) bool { return d.Version == version })
}

// Clear drops all descriptors and index state. Test/reset contexts only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = make(map[string]Descriptor)
	r.byCapability = make(map[string]map[string]struct{})
	r.byKeyword = make(map[string]map[string]struct{})
}

func (r *Registry) filter(keep func(Descriptor) bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []Descriptor{}
	for _, desc := range r.descriptors {
		if keep(desc) {
			matched = append(matched, desc)
		}
	}
	return sortDescriptors(matched)
}

func (r *Registry) collectLocked(set map[string]struct{}) []Descriptor {
	matched := []Descriptor{}
	for id := range set {
		if desc, ok := r.descriptors[id]; ok {
			matched = append(matched, desc)
		}
	}
	return sortDescriptors(matched)
}

func (r *Registry) snapshotLocked() []Descriptor {
	all := make([]Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		all = append(all, desc)
	}
	return all
}

func sortDescriptors(descs []Descriptor) []Descriptor {
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return descs
}
