package admin

import (
	"context"

	"github.com/google/uuid"
)

type AdminRepository interface {
	Create(ctx context.Context, a *AdminProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*AdminProfile, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*AdminProfile, error)
	Update(ctx context.Context, a *AdminProfile) error
	List(ctx context.Context, department string, limit, offset int) ([]*AdminProfile, int, error)
}
