package assets

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

type AssetStore struct {
	table *store.ResourceTable
}

func NewAssetStore(db *store.DB, logFactory logger.LogFactory) *AssetStore {
	return &AssetStore{table: store.NewResourceTable(db, logFactory, &models.Asset{})}
}

func (s *AssetStore) Create(ctx context.Context, txOrNil *store.Tx, asset *models.Asset) error {
	return s.table.Create(ctx, txOrNil, asset)
}

func (s *AssetStore) Read(ctx context.Context, txOrNil *store.Tx, id models.AssetID) (*models.Asset, error) {
	asset := &models.Asset{}
	err := s.table.ReadByID(ctx, txOrNil, id.ResourceID, asset)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// AssetNodeStore owns the asset<->node many-to-many link rows.
type AssetNodeStore struct {
	db *store.DB
}

func NewAssetNodeStore(db *store.DB) *AssetNodeStore {
	return &AssetNodeStore{db: db}
}

func (s *AssetNodeStore) Link(ctx context.Context, txOrNil *store.Tx, assetID models.AssetID, nodeID models.NodeID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Insert("asset_node").Rows(models.AssetNode{AssetID: assetID, NodeID: nodeID}).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}

func (s *AssetNodeStore) Unlink(ctx context.Context, txOrNil *store.Tx, assetID models.AssetID, nodeID models.NodeID) error {
	return s.db.Write2(txOrNil, func(w store.Writer) error {
		_, err := w.Delete("asset_node").Where(
			goqu.Ex{"asset_node_asset_id": assetID, "asset_node_node_id": nodeID},
		).Executor().ExecContext(ctx)
		return store.MakeStandardDBError(err)
	})
}
