package x10

import (
	"fmt"
	"sort"
	"strings"
)

// Param describes one configuration parameter a Constructor accepts.
type Param struct {
	Name     string
	Required bool
}

type registryEntry struct {
	ctor   Constructor
	params []Param
}

// Registry maps interface type names to the Constructor that builds them,
// along with the parameters each accepts. pyx10's registry.py keeps this
// as module-level global state populated by a decorator; §9 flags that as
// a pitfall for a library meant to be embedded, so here it is an explicit
// value the caller constructs and populates, typically once at startup.
type Registry struct {
	entries map[string]registryEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register adds a named interface type. name is matched case-insensitively
// by New. Registering the same name twice replaces the previous entry.
func (r *Registry) Register(name string, params []Param, ctor Constructor) {
	r.entries[strings.ToLower(name)] = registryEntry{ctor: ctor, params: params}
}

// Names returns the registered interface type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds an Interface from opts. opts["interface"] selects the
// registered type; every other key is validated against that type's
// declared Params before the Constructor is invoked, so an unknown key or
// a missing required key is reported as a configuration error rather than
// surfacing as a confusing failure deep inside the driver.
func (r *Registry) New(opts map[string]string) (*Interface, error) {
	typeName, ok := opts["interface"]
	if !ok {
		return nil, fmt.Errorf(`x10: required parameter "interface" is missing`)
	}
	typeName = strings.ToLower(typeName)

	entry, ok := r.entries[typeName]
	if !ok {
		return nil, fmt.Errorf("x10: interface %q is unknown; try one of: %s", typeName, strings.Join(r.Names(), ", "))
	}

	allowed := map[string]bool{"interface": true}
	for _, p := range entry.params {
		if p.Required {
			if _, ok := opts[p.Name]; !ok {
				return nil, fmt.Errorf("x10: required parameter %q for interface %q is missing", p.Name, typeName)
			}
		}
		allowed[p.Name] = true
	}
	for k := range opts {
		if !allowed[k] {
			return nil, fmt.Errorf("x10: %q is not a recognized parameter for interface %q", k, typeName)
		}
	}

	ctorOpts := make(map[string]string, len(opts)-1)
	for k, v := range opts {
		if k == "interface" {
			continue
		}
		ctorOpts[k] = v
	}
	return newInterfaceFromConstructor(ctorOpts, entry.ctor)
}
