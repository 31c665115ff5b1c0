package usage

import (
	"context"

	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// StatusReader provides read-only access to governor state.
type StatusReader interface {
	Status(ctx context.Context) domgov.Status
}
