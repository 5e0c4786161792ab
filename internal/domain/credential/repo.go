package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CredentialRepository interface {
	Create(ctx context.Context, c *Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	Update(ctx context.Context, c *Credential) error
	ListByNurse(ctx context.Context, nurseID uuid.UUID, status string, limit, offset int) ([]*Credential, int, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Credential, int, error)
	// ExpireBefore marks pending and verified credentials whose expiration
	// date is before cutoff as expired and returns them.
	ExpireBefore(ctx context.Context, cutoff time.Time) ([]*Credential, error)
}
