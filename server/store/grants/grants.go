package grants

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

// GrantStore is the read-only projection (C2) over the six authoritative relations: it never
// mutates and never allocates per-user state. Each method is one indexed query, except
// UsersLinkedToPermission, which runs two (direct links, then group links), and
// UsersAffectedByAsset, which runs two and then calls UsersLinkedToPermission per permission found.
type GrantStore struct {
	db     *store.DB
	logger.Log
}

func NewGrantStore(db *store.DB, logFactory logger.LogFactory) *GrantStore {
	return &GrantStore{db: db, Log: logFactory("GrantStore")}
}

// NodeGrantedNodes returns the set of nodes directly node-granted to U, via permission.nodes for
// every permission U is linked to (directly, or through group membership).
func (s *GrantStore) NodeGrantedNodes(ctx context.Context, txOrNil *store.Tx, userID models.UserID) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From(goqu.T("node").As("n")).
			Select("n.*").
			Distinct().
			InnerJoin(goqu.T("permission_node").As("pn"), goqu.On(goqu.Ex{"pn.permission_node_node_id": goqu.I("n.node_id")})).
			Where(goqu.I("pn.permission_node_permission_id").In(permissionsLinkedToUserSubquery(userID)))
		return r.ScanStructsContext(ctx, &nodes, ds.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error reading node granted nodes")
	}
	return nodes, nil
}

// AssetGrantedAssets returns the set of assets directly asset-granted to U, via permission.assets.
func (s *GrantStore) AssetGrantedAssets(ctx context.Context, txOrNil *store.Tx, userID models.UserID) ([]models.Asset, error) {
	var assets []models.Asset
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From(goqu.T("asset").As("a")).
			Select("a.*").
			Distinct().
			InnerJoin(goqu.T("permission_asset").As("pa"), goqu.On(goqu.Ex{"pa.permission_asset_asset_id": goqu.I("a.asset_id")})).
			Where(goqu.I("pa.permission_asset_permission_id").In(permissionsLinkedToUserSubquery(userID)))
		return r.ScanStructsContext(ctx, &assets, ds.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error reading asset granted assets")
	}
	return assets, nil
}

// AssetBelongsTo returns every asset whose node membership intersects the subtree of keyPrefix,
// i.e. asset_belongs_to(K) from §4.2. An empty keyPrefix matches every node.
func (s *GrantStore) AssetBelongsTo(ctx context.Context, txOrNil *store.Tx, keyPrefix models.NodeKey) ([]models.Asset, error) {
	var assets []models.Asset
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From(goqu.T("asset").As("a")).
			Select("a.*").
			Distinct().
			InnerJoin(goqu.T("asset_node").As("an"), goqu.On(goqu.Ex{"an.asset_node_asset_id": goqu.I("a.asset_id")})).
			InnerJoin(goqu.T("node").As("n"), goqu.On(goqu.Ex{"n.node_id": goqu.I("an.asset_node_node_id")})).
			Where(subtreeMatch("n.node_key", keyPrefix))
		return r.ScanStructsContext(ctx, &assets, ds.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error reading assets belonging to subtree")
	}
	return assets, nil
}

// UsersLinkedToPermission returns every user linked to P, directly or via group membership.
func (s *GrantStore) UsersLinkedToPermission(ctx context.Context, txOrNil *store.Tx, permissionID models.PermissionID) ([]models.UserID, error) {
	var direct, viaGroup []models.UserID
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		directDS := r.From(goqu.T("permission_user")).
			Select("permission_user_user_id").
			Where(goqu.Ex{"permission_user_permission_id": permissionID})
		if err := r.ScanValsContext(ctx, &direct, directDS.String()+";"); err != nil {
			return err
		}

		groupDS := r.From(goqu.T("permission_group").As("pg")).
			Select("gm.access_control_group_membership_member_user_id").
			Distinct().
			InnerJoin(goqu.T("access_control_group_membership").As("gm"),
				goqu.On(goqu.Ex{"gm.access_control_group_membership_group_id": goqu.I("pg.permission_group_group_id")})).
			Where(goqu.Ex{"pg.permission_group_permission_id": permissionID})
		return r.ScanValsContext(ctx, &viaGroup, groupDS.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error reading users linked to permission")
	}
	return dedupeUserIDs(append(direct, viaGroup...)), nil
}

// UsersAffectedByGroup returns the current members of G - the affected-user set for a
// `permission.groups` edge change.
func (s *GrantStore) UsersAffectedByGroup(ctx context.Context, txOrNil *store.Tx, groupID models.GroupID) ([]models.UserID, error) {
	var users []models.UserID
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From(goqu.T("access_control_group_membership")).
			Select("access_control_group_membership_member_user_id").
			Where(goqu.Ex{"access_control_group_membership_group_id": groupID})
		return r.ScanValsContext(ctx, &users, ds.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error reading users affected by group")
	}
	return users, nil
}

// UsersAffectedByAsset returns every user linked to a permission that references A directly, or
// references a node covering A - the affected-user set for an `asset.nodes` edge change.
func (s *GrantStore) UsersAffectedByAsset(ctx context.Context, txOrNil *store.Tx, assetID models.AssetID) ([]models.UserID, error) {
	var directPerms, nodePerms []models.PermissionID
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		directDS := r.From(goqu.T("permission_asset")).
			Select("permission_asset_permission_id").
			Where(goqu.Ex{"permission_asset_asset_id": assetID})
		if err := r.ScanValsContext(ctx, &directPerms, directDS.String()+";"); err != nil {
			return err
		}

		// A permission node covers A if it is one of A's nodes or an ancestor of one.
		nodeDS := r.From(goqu.T("permission_node").As("pn")).
			Select("pn.permission_node_permission_id").
			Distinct().
			InnerJoin(goqu.T("node").As("pnn"), goqu.On(goqu.Ex{"pnn.node_id": goqu.I("pn.permission_node_node_id")})).
			InnerJoin(goqu.T("node").As("n"), goqu.On(goqu.Or(
				goqu.Ex{"n.node_key": goqu.I("pnn.node_key")},
				goqu.L("n.node_key LIKE pnn.node_key || ':%'"),
			))).
			InnerJoin(goqu.T("asset_node").As("an"), goqu.On(goqu.Ex{"an.asset_node_node_id": goqu.I("n.node_id")})).
			Where(goqu.Ex{"an.asset_node_asset_id": assetID})
		return r.ScanValsContext(ctx, &nodePerms, nodeDS.String()+";")
	})
	if err != nil {
		return nil, errors.Wrap(store.MakeStandardDBError(err), "error resolving permissions referencing asset")
	}

	var users []models.UserID
	for _, p := range dedupePermissionIDs(append(directPerms, nodePerms...)) {
		u, err := s.UsersLinkedToPermission(ctx, txOrNil, p)
		if err != nil {
			return nil, err
		}
		users = append(users, u...)
	}
	return dedupeUserIDs(users), nil
}

// permissionsLinkedToUserSubquery builds the subquery "permission ids U is linked to", reused by
// NodeGrantedNodes and AssetGrantedAssets.
func permissionsLinkedToUserSubquery(userID models.UserID) *goqu.SelectDataset {
	direct := goqu.From(goqu.T("permission_user")).
		Select("permission_user_permission_id").
		Where(goqu.Ex{"permission_user_user_id": userID})
	viaGroup := goqu.From(goqu.T("permission_group").As("pg")).
		Select("pg.permission_group_permission_id").
		InnerJoin(goqu.T("access_control_group_membership").As("gm"),
			goqu.On(goqu.Ex{"gm.access_control_group_membership_group_id": goqu.I("pg.permission_group_group_id")})).
		Where(goqu.Ex{"gm.access_control_group_membership_member_user_id": userID})
	return direct.Union(viaGroup)
}

// subtreeMatch encodes the index-friendly "key equals K or starts with K:" predicate (C1).
func subtreeMatch(col string, key models.NodeKey) exp.Expression {
	if key == models.RootNodeKey {
		return goqu.L("1 = 1") // root matches every node
	}
	return goqu.Or(
		goqu.C(col).Eq(key.String()),
		goqu.C(col).Like(key.SubtreePrefix()+"%"),
	)
}

func dedupeUserIDs(ids []models.UserID) []models.UserID {
	seen := make(map[string]struct{}, len(ids))
	out := make([]models.UserID, 0, len(ids))
	for _, id := range ids {
		k := id.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupePermissionIDs(ids []models.PermissionID) []models.PermissionID {
	seen := make(map[string]struct{}, len(ids))
	out := make([]models.PermissionID, 0, len(ids))
	for _, id := range ids {
		k := id.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, id)
	}
	return out
}
