package permissions

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

type PermissionStore struct {
	table *store.ResourceTable
	db    *store.DB
}

func NewPermissionStore(db *store.DB, logFactory logger.LogFactory) *PermissionStore {
	return &PermissionStore{table: store.NewResourceTable(db, logFactory, &models.Permission{}), db: db}
}

func (s *PermissionStore) Create(ctx context.Context, txOrNil *store.Tx, permission *models.Permission) error {
	return s.table.Create(ctx, txOrNil, permission)
}

func (s *PermissionStore) Read(ctx context.Context, txOrNil *store.Tx, id models.PermissionID) (*models.Permission, error) {
	permission := &models.Permission{}
	err := s.table.ReadByID(ctx, txOrNil, id.ResourceID, permission)
	if err != nil {
		return nil, err
	}
	return permission, nil
}

// Delete removes a permission row. Callers MUST first confirm, via the invalidation bus, that no
// rebuild task is pending anywhere in the system (CannotRemovePermNow, §4.6) - this store does not
// enforce that gate itself.
func (s *PermissionStore) Delete(ctx context.Context, txOrNil *store.Tx, id models.PermissionID) error {
	return s.table.DeleteByID(ctx, txOrNil, id.ResourceID)
}

// LinkStore owns the four permission link tables (permission_user, permission_group,
// permission_node, permission_asset). Each Add/Remove is an upstream edge change; pairing it with
// an invalidation_bus call in the same transaction is the write layer's responsibility (§6).
type LinkStore struct {
	db *store.DB
}

func NewLinkStore(db *store.DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) AddUser(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, userID models.UserID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Insert("permission_user").Rows(models.PermissionUser{PermissionID: permissionID, UserID: userID}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) RemoveUser(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, userID models.UserID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Delete("permission_user").Where(goqu.Ex{
			"permission_user_permission_id": permissionID, "permission_user_user_id": userID,
		}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) AddGroup(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, groupID models.GroupID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Insert("permission_group").Rows(models.PermissionGroup{PermissionID: permissionID, GroupID: groupID}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) RemoveGroup(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, groupID models.GroupID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Delete("permission_group").Where(goqu.Ex{
			"permission_group_permission_id": permissionID, "permission_group_group_id": groupID,
		}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) AddNode(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, nodeID models.NodeID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Insert("permission_node").Rows(models.PermissionNode{PermissionID: permissionID, NodeID: nodeID}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) RemoveNode(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, nodeID models.NodeID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Delete("permission_node").Where(goqu.Ex{
			"permission_node_permission_id": permissionID, "permission_node_node_id": nodeID,
		}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) AddAsset(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, assetID models.AssetID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Insert("permission_asset").Rows(models.PermissionAsset{PermissionID: permissionID, AssetID: assetID}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *LinkStore) RemoveAsset(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID, assetID models.AssetID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Delete("permission_asset").Where(goqu.Ex{
			"permission_asset_permission_id": permissionID, "permission_asset_asset_id": assetID,
		}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}
