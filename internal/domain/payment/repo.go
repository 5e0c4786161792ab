package payment

import (
	"context"

	"github.com/google/uuid"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error)
	// OpenForVisit returns the visit's payment that is neither failed nor
	// refunded, or ErrNotFound.
	OpenForVisit(ctx context.Context, visitID uuid.UUID) (*Payment, error)
	Earnings(ctx context.Context, nurseID uuid.UUID) (*Earnings, error)
}
