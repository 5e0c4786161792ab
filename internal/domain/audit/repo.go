package audit

import (
	"context"

	"github.com/google/uuid"
)

type AuditRepository interface {
	Create(ctx context.Context, l *AuditLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*AuditLog, error)
	// Search returns matching entries newest first.
	Search(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error)
}
