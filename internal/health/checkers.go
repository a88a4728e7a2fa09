package health

import (
	"context"
	"errors"
)

// Pinger is implemented by database pools (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker reports whether the audit/document database is reachable.
// When pool is nil the service runs without persistence and the check passes.
func DatabaseChecker(pool Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if pool == nil {
				return nil
			}
			return pool.Ping(ctx)
		},
	}
}

// AgentsChecker fails when no agents are registered, which would make every
// turn request a 404. count should report the roster size.
func AgentsChecker(count func() int) Checker {
	return Checker{
		Name: "agents",
		Check: func(_ context.Context) error {
			if count == nil || count() == 0 {
				return errors.New("no agents registered")
			}
			return nil
		},
	}
}

// ToolsChecker surfaces an empty tool catalogue to operators. An empty
// catalogue is unusual but not fatal: agents can run without tools.
func ToolsChecker(count func() int) Checker {
	return Checker{
		Name: "tools",
		Check: func(_ context.Context) error {
			if count == nil {
				return errors.New("registry not configured")
			}
			if count() == 0 {
				return errors.New("tool catalogue is empty")
			}
			return nil
		},
	}
}
