package api

import (
	"context"

	"github.com/soaringjerry/Wellbeing/internal/services"
)

type accountStoreAdapter struct {
	store Store
}

func newAccountStoreAdapter(store Store) services.AccountStore {
	return &accountStoreAdapter{store: store}
}

func (a *accountStoreAdapter) GetUser(ctx context.Context, id string) (*services.User, error) {
	u, err := a.store.GetUser(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return toServiceUser(u), nil
}

func (a *accountStoreAdapter) DeleteUserData(ctx context.Context, id string) (bool, error) {
	return a.store.DeleteUserData(ctx, id)
}

var _ services.AccountStore = (*accountStoreAdapter)(nil)
