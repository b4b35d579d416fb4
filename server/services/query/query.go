// Package query implements C5: the two hot read paths, Q1 (granted assets under a key) and Q2
// (visible children of a key), plus the staleness check that drives a synchronous rebuild when
// the querying user has a pending task.
package query

import (
	"context"
	"time"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/lock"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/nodes"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
)

// CachePolicy is the hint accepted alongside every query: "0" honors the staleness check (the
// default, linearizable-for-the-reader's-own-user behavior from §5), "1" tolerates staleness and
// skips straight to serving from C3+C2.
type CachePolicy string

const (
	CachePolicyHonorStaleness CachePolicy = "0"
	CachePolicyTolerateStale  CachePolicy = "1"
)

// Rerunner is the subset of the task runner (C8) the query engine drives synchronously when it
// finds a pending task for the querying user.
type Rerunner interface {
	RunForUser(ctx context.Context, userID models.UserID) error
}

// committingRetryBudget bounds how long a reader will wait-and-retry on a lock found in
// COMMITTING phase, per §5: "bounded retry budget (≤ lock TTL / 4)".
var committingRetryBudget = lock.DefaultTTL / 4

const committingPollInterval = 50 * time.Millisecond

type Engine struct {
	mappingTree *mapping_tree.MappingTreeStore
	grants      *grants.GrantStore
	nodes       *nodes.NodeStore
	tasks       *rebuild_tasks.RebuildTaskStore
	locker      lock.Locker
	runner      Rerunner
	logger.Log
}

func NewEngine(
	mappingTree *mapping_tree.MappingTreeStore,
	grantStore *grants.GrantStore,
	nodeStore *nodes.NodeStore,
	taskStore *rebuild_tasks.RebuildTaskStore,
	locker lock.Locker,
	runner Rerunner,
	logFactory logger.LogFactory,
) *Engine {
	return &Engine{
		mappingTree: mappingTree,
		grants:      grantStore,
		nodes:       nodeStore,
		tasks:       taskStore,
		locker:      locker,
		runner:      runner,
		Log:         logFactory("QueryEngine"),
	}
}

// ensureFresh is the staleness check from §4.5/§4.8: if a task is pending for userID, it
// synchronously runs C8's single-user path before the caller proceeds to read from C3+C2. If the
// user's lock is already held by another worker in DOING phase, the read fails with
// AdminIsModifyingPerm (409 surface, per C5's SomeoneIsDoingThis -> AdminIsModifyingPerm
// translation in §7).
func (e *Engine) ensureFresh(ctx context.Context, userID models.UserID, policy CachePolicy) error {
	if policy == CachePolicyTolerateStale {
		return nil
	}

	pending, err := e.tasks.HasPendingTask(ctx, nil, userID)
	if err != nil {
		return err
	}
	if !pending {
		return e.waitOutCommitting(ctx, userID)
	}

	err = e.runner.RunForUser(ctx, userID)
	if err != nil {
		if gerror.IsSomeoneIsDoingThis(err) {
			return gerror.NewErrAdminIsModifyingPerm(userID)
		}
		return err
	}
	return nil
}

// waitOutCommitting polls a user's lock for up to committingRetryBudget if it is found in
// COMMITTING phase, since a correct commit is imminent; a DOING holder fails the read immediately.
func (e *Engine) waitOutCommitting(ctx context.Context, userID models.UserID) error {
	deadline := time.Now().Add(committingRetryBudget)
	key := models.LockKey(userID)
	for {
		value, err := e.locker.Peek(ctx, key)
		if err != nil {
			return err
		}
		if value == nil {
			return nil
		}
		if value.Stage == models.StageDoing {
			return gerror.NewErrAdminIsModifyingPerm(userID)
		}
		// COMMITTING: wait-and-retry, bounded.
		if time.Now().After(deadline) {
			return nil // budget exhausted; serve what we have rather than blocking indefinitely
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(committingPollInterval):
		}
	}
}

// ListVisibleChildren implements Q2: the children of key visible to userID, each carrying its
// granted, asset_granted and assets_amount flags.
func (e *Engine) ListVisibleChildren(ctx context.Context, userID models.UserID, key models.NodeKey, policy CachePolicy) ([]*models.MappingNode, error) {
	if err := key.Validate(); err != nil {
		return nil, gerror.NewErrMalformedKey(err.Error())
	}
	if err := e.ensureFresh(ctx, userID, policy); err != nil {
		return nil, err
	}
	return e.mappingTree.ListByParentKey(ctx, nil, userID, key)
}

// ListGrantedAssets implements Q1: every asset granted to userID under key, including wildcard
// descent through granted subtrees. An empty key (RootNodeKey) means "every asset granted to
// userID anywhere", per §6's tree-serialization contract.
func (e *Engine) ListGrantedAssets(ctx context.Context, userID models.UserID, key models.NodeKey, policy CachePolicy) ([]models.Asset, error) {
	if err := key.Validate(); err != nil {
		return nil, gerror.NewErrMalformedKey(err.Error())
	}
	if err := e.ensureFresh(ctx, userID, policy); err != nil {
		return nil, err
	}

	if key == models.RootNodeKey {
		return e.allGrantedAssets(ctx, userID)
	}

	row, err := e.mappingTree.ReadByKey(ctx, nil, userID, key)
	if err != nil {
		if !gerror.IsNotFound(err) {
			return nil, err
		}
		// Case (c): M absent. If some ancestor of K is granted for U, same as case (a); else
		// PermissionDenied.
		for _, ancestorKey := range key.Ancestors() {
			ancestorRow, aErr := e.mappingTree.ReadByKey(ctx, nil, userID, ancestorKey)
			if aErr != nil {
				if gerror.IsNotFound(aErr) {
					continue
				}
				return nil, aErr
			}
			if ancestorRow.Granted {
				return e.grants.AssetBelongsTo(ctx, nil, key)
			}
		}
		return nil, gerror.NewErrPermissionDenied("user " + userID.String() + " has no grant path to node " + key.String())
	}

	if row.Granted {
		// Case (a): all assets in subtree(K).
		return e.grants.AssetBelongsTo(ctx, nil, key)
	}

	// Case (b): partial cover.
	return e.partialCover(ctx, userID, key, row)
}

// allGrantedAssets computes the effective-granted asset set for userID directly from C2, bypassing
// the single-key M lookup entirely: the union of every asset under a directly node-granted node's
// subtree and every directly asset-granted asset, deduplicated.
func (e *Engine) allGrantedAssets(ctx context.Context, userID models.UserID) ([]models.Asset, error) {
	directNodes, err := e.grants.NodeGrantedNodes(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	directAssets, err := e.grants.AssetGrantedAssets(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[models.AssetID]struct{})
	var result []models.Asset

	for _, n := range directNodes {
		subtreeAssets, err := e.grants.AssetBelongsTo(ctx, nil, n.Key)
		if err != nil {
			return nil, err
		}
		for _, a := range subtreeAssets {
			if _, dup := seen[a.ID]; !dup {
				seen[a.ID] = struct{}{}
				result = append(result, a)
			}
		}
	}

	for _, a := range directAssets {
		if _, dup := seen[a.ID]; !dup {
			seen[a.ID] = struct{}{}
			result = append(result, a)
		}
	}

	return result, nil
}

// partialCover implements Q1 case (b) from §4.5: union over U's granted descendants of K, plus
// the directly asset-granted assets living under the asset_granted-but-ungranted descendants (and
// K itself, if K carries asset_granted).
func (e *Engine) partialCover(ctx context.Context, userID models.UserID, key models.NodeKey, row *models.MappingNode) ([]models.Asset, error) {
	grantedDescendants, err := e.mappingTree.ListGrantedDescendants(ctx, nil, userID, key)
	if err != nil {
		return nil, err
	}
	ungrantedAssetGranted, err := e.mappingTree.ListAssetGrantedUngranted(ctx, nil, userID, key)
	if err != nil {
		return nil, err
	}

	nodeIDSet := make(map[models.NodeID]struct{})
	for _, r := range ungrantedAssetGranted {
		nodeIDSet[r.NodeID] = struct{}{}
	}
	if row.AssetGranted {
		nodeIDSet[row.NodeID] = struct{}{}
	}

	seen := make(map[models.AssetID]struct{})
	var result []models.Asset

	for _, g := range grantedDescendants {
		subtreeAssets, err := e.grants.AssetBelongsTo(ctx, nil, g.Key)
		if err != nil {
			return nil, err
		}
		for _, a := range subtreeAssets {
			if _, dup := seen[a.ID]; !dup {
				seen[a.ID] = struct{}{}
				result = append(result, a)
			}
		}
	}

	directAssets, err := e.grants.AssetGrantedAssets(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range directAssets {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		belongsToOneOf, err := e.belongsToAnyNode(ctx, a.ID, nodeIDSet)
		if err != nil {
			return nil, err
		}
		if belongsToOneOf {
			seen[a.ID] = struct{}{}
			result = append(result, a)
		}
	}

	return result, nil
}

// belongsToAnyNode reports whether assetID is linked to any node in nodeIDs.
func (e *Engine) belongsToAnyNode(ctx context.Context, assetID models.AssetID, nodeIDs map[models.NodeID]struct{}) (bool, error) {
	ownerNodes, err := e.nodes.NodesForAsset(ctx, nil, assetID)
	if err != nil {
		return false, err
	}
	for _, n := range ownerNodes {
		if _, ok := nodeIDs[n.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}
