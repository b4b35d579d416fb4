package group_memberships

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

// GroupMembershipStore owns `group.members` link rows. Adding or removing a membership is an
// upstream edge change; the write layer must pair each call with an invalidation_bus call for
// MemberUserID in the same transaction (§4.6).
type GroupMembershipStore struct {
	table *store.ResourceTable
	db    *store.DB
}

func NewGroupMembershipStore(db *store.DB, logFactory logger.LogFactory) *GroupMembershipStore {
	return &GroupMembershipStore{table: store.NewResourceTable(db, logFactory, &models.GroupMembership{}), db: db}
}

func (s *GroupMembershipStore) Create(ctx context.Context, txOrNil *store.Tx, membership *models.GroupMembership) error {
	return s.table.Create(ctx, txOrNil, membership)
}

func (s *GroupMembershipStore) Delete(ctx context.Context, txOrNil *store.Tx, groupID models.GroupID, memberUserID models.UserID) error {
	return s.table.DeleteWhere(ctx, txOrNil, goqu.Ex{
		"access_control_group_membership_group_id":       groupID,
		"access_control_group_membership_member_user_id": memberUserID,
	})
}

func (s *GroupMembershipStore) ListByGroup(ctx context.Context, txOrNil *store.Tx, groupID models.GroupID) ([]*models.GroupMembership, error) {
	var rows []*models.GroupMembership
	ds := goqu.From("access_control_group_membership").Where(goqu.Ex{"access_control_group_membership_group_id": groupID})
	_, err := s.table.ListIn(ctx, txOrNil, &rows, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GroupMembershipStore) ListByUser(ctx context.Context, txOrNil *store.Tx, userID models.UserID) ([]*models.GroupMembership, error) {
	var rows []*models.GroupMembership
	ds := goqu.From("access_control_group_membership").Where(goqu.Ex{"access_control_group_membership_member_user_id": userID})
	_, err := s.table.ListIn(ctx, txOrNil, &rows, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
