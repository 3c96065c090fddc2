package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint; set at build time.
var Version = "dev"

// HealthHandler is the liveness probe. It also reports the classifier rule
// so a deployment can be checked for the rule it counts with.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		rule := ""
		if deps.Classification != nil {
			rule = string(deps.Classification.Rule())
		}
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": Version,
			"rule":    rule,
		})
	}
}

var errNotConfigured = errors.New("not configured")

// dependencyCheck probes one backing service. Optional services report their
// state without failing readiness.
type dependencyCheck struct {
	name     string
	optional bool
	probe    func(ctx context.Context) error
}

func readinessChecks(deps *Dependencies) []dependencyCheck {
	return []dependencyCheck{
		{name: "database", probe: func(ctx context.Context) error {
			if deps.DB == nil {
				return errNotConfigured
			}
			return deps.DB.Ping(ctx)
		}},
		{name: "nats", probe: func(context.Context) error {
			switch {
			case deps.NATS == nil:
				return errNotConfigured
			case !deps.NATS.IsConnected():
				return errors.New("disconnected")
			}
			return nil
		}},
		{name: "cache", optional: true, probe: func(ctx context.Context) error {
			if deps.Cache == nil {
				return errNotConfigured
			}
			return deps.Cache.Ping(ctx)
		}},
	}
}

// ReadyHandler is the readiness probe. The run store and the broker are
// required to accept analyses; the detection-file cache is not.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, chk := range checks {
			err := chk.probe(ctx)
			switch {
			case err == nil:
				results[chk.name] = "ok"
			case errors.Is(err, errNotConfigured):
				results[chk.name] = err.Error()
			default:
				results[chk.name] = "error: " + err.Error()
			}
			if err != nil && !chk.optional {
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
