package visit

import (
	"context"

	"github.com/google/uuid"
)

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetForUpdate loads a visit and locks it for the enclosing transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error)
	// ListJobs returns one page of posted visits filtered and ordered the
	// way BuildJobs does it, plus the total number of matches.
	ListJobs(ctx context.Context, q JobQuery, limit, offset int) ([]Job, int, error)
}

type ApplicationRepository interface {
	Create(ctx context.Context, a *Application) error
	GetByID(ctx context.Context, id uuid.UUID) (*Application, error)
	GetByVisitAndNurse(ctx context.Context, visitID, nurseID uuid.UUID) (*Application, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*Application, int, error)
	ListByNurse(ctx context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Application, int, error)
	// RejectPending rejects every pending application on a visit except keep.
	RejectPending(ctx context.Context, visitID, keep uuid.UUID) ([]*Application, error)
}
