package nurse

import (
	"context"

	"github.com/google/uuid"
)

type NurseRepository interface {
	Create(ctx context.Context, n *NurseProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*NurseProfile, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*NurseProfile, error)
	Update(ctx context.Context, n *NurseProfile) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*NurseProfile, int, error)
}
