package invalidation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/invalidation"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
	"github.com/jumpserver/mappingtree/server/store/store_test"
)

type stubRunner struct{ submitted int }

func (s *stubRunner) Submit() { s.submitted++ }

func newBus(t *testing.T) (*invalidation.Bus, *store_test.Fixture, *rebuild_tasks.RebuildTaskStore, *stubRunner, func()) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)

	fixture := store_test.NewFixture(db, logFactory)
	grantStore := grants.NewGrantStore(db, logFactory)
	taskStore := rebuild_tasks.NewRebuildTaskStore(db, logFactory)
	runner := &stubRunner{}
	bus := invalidation.NewBus(db, grantStore, taskStore, runner, logFactory)
	return bus, fixture, taskStore, runner, cleanup
}

// permission.users is a direct ±user event: exactly that user gets a rebuild task.
func TestOnM2MChange_PermissionUsers(t *testing.T) {
	ctx := context.Background()
	bus, fixture, tasks, runner, cleanup := newBus(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u1")
	permission := fixture.MakePermission(ctx, "p1", user.ID, nil, nil)

	err := bus.OnM2MChange(ctx, nil, store_test.Now(), models.RelationPermissionUsers, models.ActionPostAdd, false, invalidation.PKSetUser(permission.ID, user.ID))
	require.NoError(t, err)

	pending, err := tasks.HasPendingTask(ctx, nil, user.ID)
	require.NoError(t, err)
	require.True(t, pending)
	require.Equal(t, 1, runner.submitted)
}

// Reverse writes on permission.users are rejected - the affected-user computation depends on
// which side initiated the write.
func TestOnM2MChange_PermissionUsersReverseRejected(t *testing.T) {
	ctx := context.Background()
	bus, fixture, _, _, cleanup := newBus(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u2")
	permission := fixture.MakePermission(ctx, "p2", user.ID, nil, nil)

	err := bus.OnM2MChange(ctx, nil, store_test.Now(), models.RelationPermissionUsers, models.ActionPostAdd, true, invalidation.PKSetUser(permission.ID, user.ID))
	require.Error(t, err)
	require.True(t, gerror.IsReverseNotAllowed(err))
}

// pre_clear carries no primary key set and must be rejected outright.
func TestOnM2MChange_PreClearRejected(t *testing.T) {
	ctx := context.Background()
	bus, fixture, _, _, cleanup := newBus(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u3")
	permission := fixture.MakePermission(ctx, "p3", user.ID, nil, nil)

	err := bus.OnM2MChange(ctx, nil, store_test.Now(), models.RelationPermissionUsers, models.ActionPreClear, false, invalidation.PKSetUser(permission.ID, user.ID))
	require.Error(t, err)
	require.True(t, gerror.IsIllegalBulkOp(err))
}

// asset.nodes changes resolve to every user linked to a permission that covers the asset's node.
func TestOnM2MChange_AssetNodes(t *testing.T) {
	ctx := context.Background()
	bus, fixture, tasks, _, cleanup := newBus(t)
	defer cleanup()

	node := fixture.MakeNode(ctx, models.NodeKey("1"))
	asset := fixture.MakeAsset(ctx, "a", node.ID)
	user := fixture.MakeUser(ctx, "u4")
	fixture.MakePermission(ctx, "p4", user.ID, []models.NodeID{node.ID}, nil)

	err := bus.OnM2MChange(ctx, nil, store_test.Now(), models.RelationAssetNodes, models.ActionPostAdd, false, invalidation.PKSetAsset(models.PermissionID{}, asset.ID))
	require.NoError(t, err)

	pending, err := tasks.HasPendingTask(ctx, nil, user.ID)
	require.NoError(t, err)
	require.True(t, pending)
}

// Permission deletion is blocked while any rebuild task is pending anywhere in the system.
func TestOnPreDelete_BlockedByPendingTask(t *testing.T) {
	ctx := context.Background()
	bus, fixture, tasks, _, cleanup := newBus(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u5")
	permission := fixture.MakePermission(ctx, "p5", user.ID, nil, nil)
	require.NoError(t, tasks.Enqueue(ctx, nil, store_test.Now(), user.ID))

	err := bus.OnPreDelete(ctx, nil, permission.ID)
	require.Error(t, err)
	require.True(t, gerror.IsCannotRemovePermNow(err))
}

func TestOnPreDelete_AllowedWithNoPendingTasks(t *testing.T) {
	ctx := context.Background()
	bus, fixture, _, _, cleanup := newBus(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u6")
	permission := fixture.MakePermission(ctx, "p6", user.ID, nil, nil)

	err := bus.OnPreDelete(ctx, nil, permission.ID)
	require.NoError(t, err)
}
