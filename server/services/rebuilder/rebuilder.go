// Package rebuilder implements C4: recomputing a user's complete mapping-tree row set from the
// authoritative grant relations exposed by C2.
package rebuilder

import (
	"context"
	"sort"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/nodes"
)

// leafFlags threads the granted/asset_granted flags through the algorithm by explicit field,
// replacing the source's dynamic attribute stamping (see SPEC_FULL.md §9,
// "Dynamic attribute stamping").
type leafFlags struct {
	node         *models.Node
	granted      bool
	assetGranted bool
}

type Rebuilder struct {
	grants *grants.GrantStore
	nodes  *nodes.NodeStore
	logger.Log
}

func NewRebuilder(grantStore *grants.GrantStore, nodeStore *nodes.NodeStore, logFactory logger.LogFactory) *Rebuilder {
	return &Rebuilder{grants: grantStore, nodes: nodeStore, Log: logFactory("Rebuilder")}
}

// Rebuild computes the complete replacement mapping-row set for userID per the algorithm in §4.4.
// A user with no grants yields zero rows, which is legal.
func (r *Rebuilder) Rebuild(ctx context.Context, txOrNil *store.Tx, userID models.UserID) ([]*models.MappingNode, error) {
	directNodes, err := r.grants.NodeGrantedNodes(ctx, txOrNil, userID)
	if err != nil {
		return nil, err
	}
	directAssets, err := r.grants.AssetGrantedAssets(ctx, txOrNil, userID)
	if err != nil {
		return nil, err
	}

	// Leaves = N_direct ∪ N_asset, keyed by node key, flags unioned on merge.
	leaves := make(map[models.NodeKey]*leafFlags)
	for i := range directNodes {
		n := &directNodes[i]
		leaves[n.Key] = &leafFlags{node: n, granted: true}
	}

	for i := range directAssets {
		asset := &directAssets[i]
		ownerNodes, err := r.nodesContainingAsset(ctx, txOrNil, asset.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range ownerNodes {
			if existing, ok := leaves[n.Key]; ok {
				existing.assetGranted = true
			} else {
				nCopy := n
				leaves[n.Key] = &leafFlags{node: &nCopy, assetGranted: true}
			}
		}
	}

	// Ancestors = union of ancestors(K) for K in keys(Leaves), minus keys(Leaves) itself.
	ancestorKeys := make(map[models.NodeKey]struct{})
	for key := range leaves {
		for _, ancestor := range key.Ancestors() {
			if _, isLeaf := leaves[ancestor]; !isLeaf {
				ancestorKeys[ancestor] = struct{}{}
			}
		}
	}
	var missingKeys []models.NodeKey
	for key := range ancestorKeys {
		missingKeys = append(missingKeys, key)
	}
	ancestorNodes, err := r.nodes.ReadByKeys(ctx, txOrNil, missingKeys)
	if err != nil {
		return nil, err
	}
	ancestors := make(map[models.NodeKey]*leafFlags, len(ancestorNodes))
	for _, n := range ancestorNodes {
		ancestors[n.Key] = &leafFlags{node: n}
	}

	// Union Leaves and Ancestors, then compute assets_amount for every row.
	all := make(map[models.NodeKey]*leafFlags, len(leaves)+len(ancestors))
	for k, v := range leaves {
		all[k] = v
	}
	for k, v := range ancestors {
		all[k] = v
	}

	rows := make([]*models.MappingNode, 0, len(all))
	for _, entry := range all {
		amount, err := r.assetsAmount(ctx, txOrNil, userID, entry, leaves, directAssets)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.NewMappingNode(userID, entry.node, entry.granted, entry.assetGranted, amount))
	}

	if err := r.checkInvariants(rows); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

// nodesContainingAsset resolves the set of nodes an asset belongs to via its asset_node link rows.
func (r *Rebuilder) nodesContainingAsset(ctx context.Context, txOrNil *store.Tx, assetID models.AssetID) ([]models.Node, error) {
	return r.nodes.NodesForAsset(ctx, txOrNil, assetID)
}

// assetsAmount implements step 6 of §4.4: for a granted row, count every asset under the
// subtree; otherwise count the union of assets under granted descendants (already in Leaves) and
// directly asset-granted assets that live in this row's subtree, deduplicated.
func (r *Rebuilder) assetsAmount(
	ctx context.Context,
	txOrNil *store.Tx,
	userID models.UserID,
	entry *leafFlags,
	leaves map[models.NodeKey]*leafFlags,
	directAssets []models.Asset,
) (int, error) {
	if entry.granted {
		subtreeAssets, err := r.grants.AssetBelongsTo(ctx, txOrNil, entry.node.Key)
		if err != nil {
			return 0, err
		}
		return len(subtreeAssets), nil
	}

	seen := make(map[models.AssetID]struct{})

	for key, leaf := range leaves {
		if !leaf.granted || !key.IsStrictDescendantOf(entry.node.Key) {
			continue
		}
		subtreeAssets, err := r.grants.AssetBelongsTo(ctx, txOrNil, key)
		if err != nil {
			return 0, err
		}
		for _, a := range subtreeAssets {
			seen[a.ID] = struct{}{}
		}
	}

	for i := range directAssets {
		asset := &directAssets[i]
		ownerNodes, err := r.nodesContainingAsset(ctx, txOrNil, asset.ID)
		if err != nil {
			return 0, err
		}
		for _, n := range ownerNodes {
			if n.Key.IsDescendantOf(entry.node.Key) {
				seen[asset.ID] = struct{}{}
				break
			}
		}
	}

	return len(seen), nil
}

// checkInvariants enforces invariant C3 (no redundant double-grant): if the rebuilder ever
// computes granted=true twice for the same key, the upstream data violated the no-duplicate-grant
// assumption and the rebuild must abort rather than silently double count.
func (r *Rebuilder) checkInvariants(rows []*models.MappingNode) error {
	seenGranted := make(map[models.NodeKey]struct{})
	for _, row := range rows {
		if !row.Granted {
			continue
		}
		if _, ok := seenGranted[row.Key]; ok {
			return gerror.NewErrIntegrityViolation(
				"node " + row.Key.String() + " computed granted=true more than once for user " + row.UserID.String())
		}
		seenGranted[row.Key] = struct{}{}
	}
	return nil
}
