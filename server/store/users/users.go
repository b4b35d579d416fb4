package users

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

type UserStore struct {
	*store.ResourceTable
}

func NewUserStore(db *store.DB, logFactory logger.LogFactory) *UserStore {
	return &UserStore{ResourceTable: store.NewResourceTable(db, logFactory, &models.User{})}
}

func (s *UserStore) Create(ctx context.Context, txOrNil *store.Tx, user *models.User) error {
	return s.ResourceTable.Create(ctx, txOrNil, user)
}

func (s *UserStore) Read(ctx context.Context, txOrNil *store.Tx, id models.UserID) (*models.User, error) {
	user := &models.User{}
	err := s.ResourceTable.ReadByID(ctx, txOrNil, id.ResourceID, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) ReadByUsername(ctx context.Context, txOrNil *store.Tx, username models.ResourceName) (*models.User, error) {
	user := &models.User{}
	err := s.ResourceTable.ReadWhere(ctx, txOrNil, user, goqu.Ex{"user_username": username})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user record. The caller is responsible for also clearing the user's mapping
// rows (C3) and pending rebuild task (C6) - the store layer does not cascade across packages.
func (s *UserStore) Delete(ctx context.Context, txOrNil *store.Tx, id models.UserID) error {
	return s.ResourceTable.DeleteByID(ctx, txOrNil, id.ResourceID)
}
