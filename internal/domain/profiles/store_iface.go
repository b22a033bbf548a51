package profiles

import "context"

type StoreAPI interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	Update(ctx context.Context, id string, changes []Change) error
}
