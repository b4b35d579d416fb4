// Package invalidation implements C6: the bus that converts upstream edge-change events on the
// six authoritative relations into RebuildUserTreeTask rows.
package invalidation

import (
	"context"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
)

// Runner is the subset of the task runner (C8) the bus needs: a non-blocking nudge to wake idle
// workers once the enclosing transaction commits.
type Runner interface {
	Submit()
}

// Bus implements the event interface in §6. Every method must be called by the write layer within
// the same transaction as the upstream mutation it reports.
type Bus struct {
	grants *grants.GrantStore
	tasks  *rebuild_tasks.RebuildTaskStore
	db     *store.DB
	runner Runner
	logger.Log
}

func NewBus(db *store.DB, grantStore *grants.GrantStore, taskStore *rebuild_tasks.RebuildTaskStore, runner Runner, logFactory logger.LogFactory) *Bus {
	return &Bus{grants: grantStore, tasks: taskStore, db: db, runner: runner, Log: logFactory("InvalidationBus")}
}

// OnM2MChange reports a change to one of the six authoritative relations, computing the affected
// user set per the table in §4.6 and bulk-inserting their rebuild tasks. Must run inside the
// caller's transaction (tx) so the task insert commits atomically with the upstream change.
func (b *Bus) OnM2MChange(ctx context.Context, tx *store.Tx, now models.Time, relation models.M2MRelation, action models.M2MAction, reverse bool, pkSet m2mPKSet) error {
	if action == models.ActionPreClear {
		return gerror.NewErrIllegalBulkOp("pre_clear carries no primary key set and cannot be translated into an affected-user set")
	}

	affected, err := b.affectedUsers(ctx, tx, relation, reverse, pkSet)
	if err != nil {
		return err
	}

	for _, userID := range affected {
		if err := b.tasks.Enqueue(ctx, tx, now, userID); err != nil {
			return err
		}
	}
	if b.runner != nil {
		b.runner.Submit()
	}
	return nil
}

// OnPreDelete reports that permission P is about to be deleted. It is rejected with
// CannotRemovePermNow if any rebuild task exists anywhere in the system, which prevents a rebuild
// from racing against the deletion of its source of truth (§4.6).
func (b *Bus) OnPreDelete(ctx context.Context, tx *store.Tx, permissionID models.PermissionID) error {
	pending, err := b.tasks.HasAnyPendingTask(ctx, tx)
	if err != nil {
		return err
	}
	if pending {
		return gerror.NewErrCannotRemovePermNow("a rebuild task is pending somewhere in the system; retry once the queue drains")
	}
	return nil
}

// m2mPKSet carries the primary keys the m2m change affected, analogous to Django's pk_set. Only
// the field relevant to relation is populated; callers build it with the matching constructor.
type m2mPKSet struct {
	UserID    *models.UserID
	GroupID   *models.GroupID
	NodeID    *models.NodeID
	AssetID   *models.AssetID
	Permission models.PermissionID
}

func PKSetUser(permissionID models.PermissionID, userID models.UserID) m2mPKSet {
	return m2mPKSet{Permission: permissionID, UserID: &userID}
}

func PKSetGroup(permissionID models.PermissionID, groupID models.GroupID) m2mPKSet {
	return m2mPKSet{Permission: permissionID, GroupID: &groupID}
}

func PKSetNode(permissionID models.PermissionID, nodeID models.NodeID) m2mPKSet {
	return m2mPKSet{Permission: permissionID, NodeID: &nodeID}
}

func PKSetAsset(permissionID models.PermissionID, assetID models.AssetID) m2mPKSet {
	return m2mPKSet{Permission: permissionID, AssetID: &assetID}
}

func (b *Bus) affectedUsers(ctx context.Context, tx *store.Tx, relation models.M2MRelation, reverse bool, pkSet m2mPKSet) ([]models.UserID, error) {
	switch relation {
	case models.RelationPermissionUsers:
		if reverse {
			return nil, gerror.NewErrReverseNotAllowed("permission.users does not accept reverse writes")
		}
		if pkSet.UserID == nil {
			return nil, gerror.NewErrIllegalBulkOp("permission.users change requires a user id")
		}
		return []models.UserID{*pkSet.UserID}, nil

	case models.RelationPermissionGroups:
		if pkSet.GroupID == nil {
			return nil, gerror.NewErrIllegalBulkOp("permission.groups change requires a group id")
		}
		return b.grants.UsersAffectedByGroup(ctx, tx, *pkSet.GroupID)

	case models.RelationPermissionNodes, models.RelationPermissionAssets:
		return b.grants.UsersLinkedToPermission(ctx, tx, pkSet.Permission)

	case models.RelationGroupMembers:
		if reverse {
			return nil, gerror.NewErrReverseNotAllowed("group.members does not accept reverse writes")
		}
		if pkSet.UserID == nil {
			return nil, gerror.NewErrIllegalBulkOp("group.members change requires a user id")
		}
		return []models.UserID{*pkSet.UserID}, nil

	case models.RelationAssetNodes:
		if pkSet.AssetID == nil {
			return nil, gerror.NewErrIllegalBulkOp("asset.nodes change requires an asset id")
		}
		return b.grants.UsersAffectedByAsset(ctx, tx, *pkSet.AssetID)

	default:
		return nil, gerror.NewErrIllegalBulkOp("unknown relation: " + string(relation))
	}
}
