package mapping_tree

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

// MappingTreeStore is C3: the exclusive owner of MappingNode rows. Rows for a user are created
// lazily on first rebuild and always replaced wholesale - there is no per-row update API, only
// Replace and the index-backed List queries C5 needs.
type MappingTreeStore struct {
	table *store.ResourceTable
	db    *store.DB
	logger.Log
}

func NewMappingTreeStore(db *store.DB, logFactory logger.LogFactory) *MappingTreeStore {
	return &MappingTreeStore{
		table: store.NewResourceTable(db, logFactory, &models.MappingNode{}),
		db:    db,
		Log:   logFactory("MappingTreeStore"),
	}
}

// Replace atomically deletes every existing mapping row for userID and inserts rows in its place,
// within txOrNil (the caller's rebuild transaction). This is the only mutation C3 exposes.
func (s *MappingTreeStore) Replace(ctx context.Context, txOrNil *store.Tx, userID models.UserID, rows []*models.MappingNode) error {
	return s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		err := s.table.DeleteWhere(ctx, tx, goqu.Ex{"mapping_node_user_id": userID})
		if err != nil {
			return errors.Wrap(err, "error deleting existing mapping rows")
		}
		for _, row := range rows {
			if err := s.table.Create(ctx, tx, row); err != nil {
				return errors.Wrapf(err, "error inserting mapping row for key %q", row.Key)
			}
		}
		return nil
	})
}

// DeleteAllForUser removes every mapping row for userID, used when the user itself is deleted.
func (s *MappingTreeStore) DeleteAllForUser(ctx context.Context, txOrNil *store.Tx, userID models.UserID) error {
	return s.table.DeleteWhere(ctx, txOrNil, goqu.Ex{"mapping_node_user_id": userID})
}

// ReadByKey returns the mapping row for (userID, key), or a NotFound error if no row exists -
// case (c) of Q1 and the M lookup used throughout §4.5.
func (s *MappingTreeStore) ReadByKey(ctx context.Context, txOrNil *store.Tx, userID models.UserID, key models.NodeKey) (*models.MappingNode, error) {
	row := &models.MappingNode{}
	err := s.table.ReadWhere(ctx, txOrNil, row, goqu.Ex{
		"mapping_node_user_id": userID,
		"mapping_node_key":     key,
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListByParentKey returns every mapping row for userID whose parent key is exactly parentKey -
// the index-backed query behind Q2.
func (s *MappingTreeStore) ListByParentKey(ctx context.Context, txOrNil *store.Tx, userID models.UserID, parentKey models.NodeKey) ([]*models.MappingNode, error) {
	var rows []*models.MappingNode
	ds := goqu.From("mapping_node").Where(goqu.Ex{
		"mapping_node_user_id":    userID,
		"mapping_node_parent_key": parentKey,
	}).Order(goqu.I("mapping_node_key").Asc())
	_, err := s.table.ListIn(ctx, txOrNil, &rows, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListGrantedDescendants returns every granted=true row for userID whose key is a strict
// descendant of keyPrefix - the G set in Q1 case (b).
func (s *MappingTreeStore) ListGrantedDescendants(ctx context.Context, txOrNil *store.Tx, userID models.UserID, keyPrefix models.NodeKey) ([]*models.MappingNode, error) {
	var rows []*models.MappingNode
	ds := goqu.From("mapping_node").Where(goqu.Ex{
		"mapping_node_user_id":  userID,
		"mapping_node_granted":  true,
	}).Where(goqu.C("mapping_node_key").Like(keyPrefix.SubtreePrefix() + "%"))
	_, err := s.table.ListIn(ctx, txOrNil, &rows, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAssetGrantedUngranted returns every asset_granted=true, granted=false row for userID whose
// key is a strict descendant of keyPrefix - the S set in Q1 case (b).
func (s *MappingTreeStore) ListAssetGrantedUngranted(ctx context.Context, txOrNil *store.Tx, userID models.UserID, keyPrefix models.NodeKey) ([]*models.MappingNode, error) {
	var rows []*models.MappingNode
	ds := goqu.From("mapping_node").Where(goqu.Ex{
		"mapping_node_user_id":       userID,
		"mapping_node_asset_granted": true,
		"mapping_node_granted":       false,
	}).Where(goqu.C("mapping_node_key").Like(keyPrefix.SubtreePrefix() + "%"))
	_, err := s.table.ListIn(ctx, txOrNil, &rows, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
