package shared

import "context"

// Invalidator drops cached read models after stock changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}
