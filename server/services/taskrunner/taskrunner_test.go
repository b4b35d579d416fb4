package taskrunner_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/lock"
	"github.com/jumpserver/mappingtree/server/services/rebuilder"
	"github.com/jumpserver/mappingtree/server/services/taskrunner"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
	"github.com/jumpserver/mappingtree/server/store/store_test"
)

func newRunner(t *testing.T) (*taskrunner.TaskRunner, *store_test.Fixture, *rebuild_tasks.RebuildTaskStore, *mapping_tree.MappingTreeStore, lock.Locker, func()) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)

	fixture := store_test.NewFixture(db, logFactory)
	grantStore := grants.NewGrantStore(db, logFactory)
	mappingTreeStore := mapping_tree.NewMappingTreeStore(db, logFactory)
	taskStore := rebuild_tasks.NewRebuildTaskStore(db, logFactory)
	locker := lock.NewMemoryLock(clock.NewMock())
	rb := rebuilder.NewRebuilder(grantStore, fixture.Nodes, logFactory)
	runner := taskrunner.NewTaskRunner(db, taskStore, mappingTreeStore, rb, locker, logFactory)
	return runner, fixture, taskStore, mappingTreeStore, locker, cleanup
}

// Enqueuing twice for the same user coalesces onto one row (deterministic task id).
func TestEnqueue_Coalesces(t *testing.T) {
	ctx := context.Background()
	_, fixture, tasks, _, _, cleanup := newRunner(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u1")
	require.NoError(t, tasks.Enqueue(ctx, nil, store_test.Now(), user.ID))
	require.NoError(t, tasks.Enqueue(ctx, nil, store_test.Now(), user.ID))

	count, err := tasks.CountPending(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

// RunForUser rebuilds, replaces the mapping rows and deletes the task row on success.
func TestRunForUser_CommitsAndClearsTask(t *testing.T) {
	ctx := context.Background()
	runner, fixture, tasks, mappingTreeStore, _, cleanup := newRunner(t)
	defer cleanup()

	node := fixture.MakeNode(ctx, models.NodeKey("1"))
	fixture.MakeAsset(ctx, "a", node.ID)
	user := fixture.MakeUser(ctx, "u2")
	fixture.MakePermission(ctx, "p2", user.ID, []models.NodeID{node.ID}, nil)
	require.NoError(t, tasks.Enqueue(ctx, nil, store_test.Now(), user.ID))

	require.NoError(t, runner.RunForUser(ctx, user.ID))

	pending, err := tasks.HasPendingTask(ctx, nil, user.ID)
	require.NoError(t, err)
	require.False(t, pending)

	rows, err := mappingTreeStore.ListByParentKey(ctx, nil, user.ID, models.RootNodeKey)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Granted)
}

// A RunForUser call for a user whose lock is already held by another holder returns
// SomeoneIsDoingThis rather than blocking or double-rebuilding.
func TestRunForUser_ConcurrentHolderRejected(t *testing.T) {
	ctx := context.Background()
	runner, fixture, _, _, locker, cleanup := newRunner(t)
	defer cleanup()

	user := fixture.MakeUser(ctx, "u3")

	key := models.LockKey(user.ID)
	acquired, err := locker.Acquire(ctx, key, models.NewLockValue("x", "y", time.Now().Unix()), lock.DefaultTTL)
	require.NoError(t, err)
	require.True(t, acquired)

	err = runner.RunForUser(ctx, user.ID)
	require.Error(t, err)
	require.True(t, gerror.IsSomeoneIsDoingThis(err))
}

// ResetFailed can be called on a fresh runner, whose failed set is empty, without panicking.
func TestResetFailed(t *testing.T) {
	runner, _, _, _, _, cleanup := newRunner(t)
	defer cleanup()
	runner.ResetFailed()
}
