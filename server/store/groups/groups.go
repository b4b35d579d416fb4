package groups

import (
	"context"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

type GroupStore struct {
	*store.ResourceTable
}

func NewGroupStore(db *store.DB, logFactory logger.LogFactory) *GroupStore {
	return &GroupStore{ResourceTable: store.NewResourceTable(db, logFactory, &models.Group{})}
}

func (s *GroupStore) Create(ctx context.Context, txOrNil *store.Tx, group *models.Group) error {
	return s.ResourceTable.Create(ctx, txOrNil, group)
}

func (s *GroupStore) Read(ctx context.Context, txOrNil *store.Tx, id models.GroupID) (*models.Group, error) {
	group := &models.Group{}
	err := s.ResourceTable.ReadByID(ctx, txOrNil, id.ResourceID, group)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *GroupStore) Update(ctx context.Context, txOrNil *store.Tx, group *models.Group) error {
	return s.ResourceTable.UpdateByID(ctx, txOrNil, group)
}

func (s *GroupStore) SoftDelete(ctx context.Context, txOrNil *store.Tx, group *models.Group) error {
	return s.ResourceTable.SoftDelete(ctx, txOrNil, group)
}
