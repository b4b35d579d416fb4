package nodes

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

type NodeStore struct {
	table *store.ResourceTable
	db    *store.DB
}

func NewNodeStore(db *store.DB, logFactory logger.LogFactory) *NodeStore {
	return &NodeStore{table: store.NewResourceTable(db, logFactory, &models.Node{}), db: db}
}

func (s *NodeStore) Create(ctx context.Context, txOrNil *store.Tx, node *models.Node) error {
	return s.table.Create(ctx, txOrNil, node)
}

func (s *NodeStore) Read(ctx context.Context, txOrNil *store.Tx, id models.NodeID) (*models.Node, error) {
	node := &models.Node{}
	err := s.table.ReadByID(ctx, txOrNil, id.ResourceID, node)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *NodeStore) ReadByKey(ctx context.Context, txOrNil *store.Tx, key models.NodeKey) (*models.Node, error) {
	node := &models.Node{}
	err := s.table.ReadWhere(ctx, txOrNil, node, goqu.Ex{"node_key": key})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// NodesForAsset returns every node assetID belongs to, via the asset_node link table.
func (s *NodeStore) NodesForAsset(ctx context.Context, txOrNil *store.Tx, assetID models.AssetID) ([]models.Node, error) {
	var nodeList []models.Node
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From(goqu.T("node").As("n")).
			Select("n.*").
			InnerJoin(goqu.T("asset_node").As("an"), goqu.On(goqu.Ex{"an.asset_node_node_id": goqu.I("n.node_id")})).
			Where(goqu.Ex{"an.asset_node_asset_id": assetID})
		return r.ScanStructsContext(ctx, &nodeList, ds.String()+";")
	})
	if err != nil {
		return nil, store.MakeStandardDBError(err)
	}
	return nodeList, nil
}

// ReadByKeys returns every node whose key is in keys, in no particular order. Missing keys are
// simply absent from the result - callers must reconcile by length if they require completeness.
func (s *NodeStore) ReadByKeys(ctx context.Context, txOrNil *store.Tx, keys []models.NodeKey) ([]*models.Node, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	in := make([]interface{}, len(keys))
	for i, k := range keys {
		in[i] = k
	}
	var nodes []*models.Node
	ds := goqu.From("node").Where(goqu.C("node_key").In(in...))
	_, err := s.table.ListIn(ctx, txOrNil, &nodes, models.Pagination{}, ds)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}
