package ports

import "context"

// HealthChecker checks one dependency for the /health report. Check returns nil while the
// dependency is usable; Name keys the result.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}
