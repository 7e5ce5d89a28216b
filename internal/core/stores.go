package core

import (
	"context"

	"github.com/valter-silva-au/opsboard/pkg/models"
)

// BusinessLookup resolves business accounts for creating tasks from a
// business. This interface is defined locally in core to avoid importing
// storage. Implementations return ErrNotFound for unknown ids.
type BusinessLookup interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	ListBusinesses(ctx context.Context) ([]models.Business, error)
}
