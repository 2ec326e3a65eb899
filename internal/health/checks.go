package health

import (
	"fmt"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/registry"
	"github.com/vyrodovalexey/envproxy/internal/resolver"
)

// ServiceCheck reports whether svc can resolve a backend in its active
// environment.
func ServiceCheck(res *resolver.Resolver, svc *config.ServiceConfig) CheckFunc {
	return func() Check {
		env, err := res.Environment(svc)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		if _, err := resolver.Resolve(svc, env, svc.OriginalPath, ""); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("environment %q", env),
		}
	}
}

// RegisterServices registers one readiness check per service, named
// "service:<name>".
func RegisterServices(c *Checker, reg *registry.Registry, res *resolver.Resolver) {
	_ = reg.Each(func(svc *config.ServiceConfig) error {
		c.RegisterCheck("service:"+svc.Name, ServiceCheck(res, svc))
		return nil
	})
}
