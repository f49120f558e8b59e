package registry

import (
	"context"

	"pinksync/pkg/domain"
)

// Store persists capability declarations.
type Store interface {
	Get(ctx context.Context, appID domain.AppID) (*Declaration, error)
	Put(ctx context.Context, declaration Declaration) error
	List(ctx context.Context) ([]Declaration, error)
}
