package completion

import (
	"context"

	"github.com/kailas-cloud/tokgov/internal/domain/governor/mode"
	"github.com/kailas-cloud/tokgov/internal/domain/governor/priority"
	"github.com/kailas-cloud/tokgov/internal/usecase/governor"
)

// Governor is the local interface for budget enforcement.
type Governor interface {
	CurrentMode(ctx context.Context) mode.Mode
	Reserve(ctx context.Context, estimate int64, p priority.Priority) (governor.Reservation, bool, error)
	Settle(ctx context.Context, id string, actual int64) error
	Release(ctx context.Context, id string) error
}
