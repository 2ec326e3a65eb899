// Package registry holds the set of proxied services loaded at startup.
//
// A Registry is built once and never changes afterwards, so it can be
// shared by every request handler without locking.
package registry

import (
	"errors"
	"fmt"
	"maps"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/util"
)

// ErrServiceNotFound is returned by Lookup for unknown service names.
var ErrServiceNotFound = fmt.Errorf("service %w", util.ErrNotFound)

// ErrDuplicateService is returned by New when two services share a name.
var ErrDuplicateService = errors.New("duplicate service name")

// Registry is an ordered, read-only mapping of service name to its
// configuration.
type Registry struct {
	services []config.ServiceConfig
	index    map[string]int
}

// New builds a registry from the configured services, keeping their
// order. The configurations are copied so later changes to the input
// do not leak into the registry.
func New(services config.ServiceList) (*Registry, error) {
	r := &Registry{
		services: make([]config.ServiceConfig, 0, len(services)),
		index:    make(map[string]int, len(services)),
	}

	for i := range services {
		svc := services[i]
		if _, exists := r.index[svc.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name)
		}

		svc.AdditionalHeaders = maps.Clone(svc.AdditionalHeaders)
		svc.EnvironmentURLs = maps.Clone(svc.EnvironmentURLs)

		r.index[svc.Name] = len(r.services)
		r.services = append(r.services, svc)
	}

	return r, nil
}

// Lookup returns the configuration of the named service. The returned
// value is shared and must not be modified.
func (r *Registry) Lookup(name string) (*config.ServiceConfig, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return &r.services[i], nil
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.services)
}

// Names returns the service names in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.services))
	for i := range r.services {
		names[i] = r.services[i].Name
	}
	return names
}

// Each calls fn for every service in configuration order and stops at
// the first error.
func (r *Registry) Each(fn func(svc *config.ServiceConfig) error) error {
	for i := range r.services {
		if err := fn(&r.services[i]); err != nil {
			return err
		}
	}
	return nil
}
