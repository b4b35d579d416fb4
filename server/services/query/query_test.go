package query_test

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/lock"
	"github.com/jumpserver/mappingtree/server/services/query"
	"github.com/jumpserver/mappingtree/server/services/rebuilder"
	"github.com/jumpserver/mappingtree/server/services/taskrunner"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
	"github.com/jumpserver/mappingtree/server/store/store_test"
)

type env struct {
	fixture *store_test.Fixture
	engine  *query.Engine
	runner  *taskrunner.TaskRunner
	tasks   *rebuild_tasks.RebuildTaskStore
	cleanup func()
}

func newEnv(t *testing.T) *env {
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
	engine := query.NewEngine(mappingTreeStore, grantStore, fixture.Nodes, taskStore, locker, runner, logFactory)

	return &env{fixture: fixture, engine: engine, runner: runner, tasks: taskStore, cleanup: cleanup}
}

func assetIDs(assets []models.Asset) map[string]bool {
	out := make(map[string]bool, len(assets))
	for _, a := range assets {
		out[a.ID.String()] = true
	}
	return out
}

// Q1 case (a): key is directly granted -> every asset in its subtree.
func TestListGrantedAssets_CaseA_DirectGrant(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	k1 := models.NodeKey("1")
	n1 := e.fixture.MakeNode(ctx, k1)
	a := e.fixture.MakeAsset(ctx, "a", n1.ID)
	user := e.fixture.MakeUser(ctx, "u1")
	e.fixture.MakePermission(ctx, "p1", user.ID, []models.NodeID{n1.ID}, nil)
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, k1, query.CachePolicyTolerateStale)
	require.NoError(t, err)
	require.True(t, assetIDs(assets)[a.ID.String()])
}

// Q1 case (c): key absent but an ancestor is granted -> same result as case (a).
func TestListGrantedAssets_CaseC_AncestorGranted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	k1 := models.NodeKey("1")
	k11 := models.NodeKey("1:2")
	n1 := e.fixture.MakeNode(ctx, k1)
	n11 := e.fixture.MakeNode(ctx, k11)
	a := e.fixture.MakeAsset(ctx, "a", n11.ID)
	user := e.fixture.MakeUser(ctx, "u2")
	e.fixture.MakePermission(ctx, "p2", user.ID, []models.NodeID{n1.ID}, nil)
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, k11, query.CachePolicyTolerateStale)
	require.NoError(t, err)
	require.True(t, assetIDs(assets)[a.ID.String()])
}

// Q1 case (c): key absent, no granted ancestor -> PermissionDenied.
func TestListGrantedAssets_CaseC_NoGrantPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	k1 := models.NodeKey("1")
	k2 := models.NodeKey("2")
	e.fixture.MakeNode(ctx, k1)
	e.fixture.MakeNode(ctx, k2)
	user := e.fixture.MakeUser(ctx, "u3")
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	_, err := e.engine.ListGrantedAssets(ctx, user.ID, k2, query.CachePolicyTolerateStale)
	require.Error(t, err)
	require.True(t, gerror.IsPermissionDenied(err))
}

// Q1 case (b): key present but not granted, only a directly asset-granted asset elsewhere in the
// tree -> the partial-cover path must not leak unrelated directly-granted assets into this key's
// result.
func TestListGrantedAssets_CaseB_PartialCoverExcludesUnrelatedAssets(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	root := models.NodeKey("1")
	left := models.NodeKey("1:2")
	right := models.NodeKey("1:3")
	e.fixture.MakeNode(ctx, root)
	nLeft := e.fixture.MakeNode(ctx, left)
	nRight := e.fixture.MakeNode(ctx, right)
	leftAsset := e.fixture.MakeAsset(ctx, "left", nLeft.ID)
	rightAsset := e.fixture.MakeAsset(ctx, "right", nRight.ID)
	user := e.fixture.MakeUser(ctx, "u4")
	// Grant only the asset under "left"; "right" is untouched.
	e.fixture.MakePermission(ctx, "p4", user.ID, nil, []models.AssetID{leftAsset.ID})
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, root, query.CachePolicyTolerateStale)
	require.NoError(t, err)
	ids := assetIDs(assets)
	require.True(t, ids[leftAsset.ID.String()])
	require.False(t, ids[rightAsset.ID.String()], "an asset granted under a different node must not leak into this key's partial cover")
}

// An empty key means "every asset granted to the user anywhere", combining a node grant, an asset
// grant elsewhere in the tree, and excluding an asset the user has no path to at all.
func TestListGrantedAssets_RootKeyListsEveryGrantedAsset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	nodeGranted := e.fixture.MakeNode(ctx, models.NodeKey("1"))
	assetGranted := e.fixture.MakeNode(ctx, models.NodeKey("2"))
	ungranted := e.fixture.MakeNode(ctx, models.NodeKey("3"))

	viaNode := e.fixture.MakeAsset(ctx, "via-node", nodeGranted.ID)
	viaAsset := e.fixture.MakeAsset(ctx, "via-asset", assetGranted.ID)
	outOfReach := e.fixture.MakeAsset(ctx, "out-of-reach", ungranted.ID)

	user := e.fixture.MakeUser(ctx, "u-root")
	e.fixture.MakePermission(ctx, "p-root", user.ID, []models.NodeID{nodeGranted.ID}, []models.AssetID{viaAsset.ID})
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, models.RootNodeKey, query.CachePolicyTolerateStale)
	require.NoError(t, err)

	ids := assetIDs(assets)
	require.True(t, ids[viaNode.ID.String()])
	require.True(t, ids[viaAsset.ID.String()])
	require.False(t, ids[outOfReach.ID.String()])
}

// A fully ungranted user querying the root key gets an empty result, not PermissionDenied - the
// root-key mode is a listing, not a single-key lookup.
func TestListGrantedAssets_RootKeyEmptyForUngrantedUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	user := e.fixture.MakeUser(ctx, "u-nogrant")
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, models.RootNodeKey, query.CachePolicyTolerateStale)
	require.NoError(t, err)
	require.Empty(t, assets)
}

// Q2: visible children at the root carry their precomputed assets_amount.
func TestListVisibleChildren(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	k1 := models.NodeKey("1")
	n1 := e.fixture.MakeNode(ctx, k1)
	e.fixture.MakeAsset(ctx, "a", n1.ID)
	e.fixture.MakeAsset(ctx, "b", n1.ID)
	user := e.fixture.MakeUser(ctx, "u5")
	e.fixture.MakePermission(ctx, "p5", user.ID, []models.NodeID{n1.ID}, nil)
	require.NoError(t, e.runner.RunForUser(ctx, user.ID))

	children, err := e.engine.ListVisibleChildren(ctx, user.ID, models.RootNodeKey, query.CachePolicyTolerateStale)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, k1, children[0].Key)
	require.True(t, children[0].Granted)
	require.Equal(t, 2, children[0].AssetsAmount)
}

// A malformed key is rejected before touching the store.
func TestListVisibleChildren_MalformedKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	user := e.fixture.MakeUser(ctx, "u6")
	_, err := e.engine.ListVisibleChildren(ctx, user.ID, models.NodeKey(":bad"), query.CachePolicyTolerateStale)
	require.Error(t, err)
	require.True(t, gerror.IsMalformedKey(err))
}

// The honor-staleness policy drives a synchronous rebuild when a task is pending, so a read
// immediately after a grant (with no explicit RunForUser) still sees the new state.
func TestListGrantedAssets_HonorStalenessSynchronouslyRebuilds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	defer e.cleanup()

	k1 := models.NodeKey("1")
	n1 := e.fixture.MakeNode(ctx, k1)
	a := e.fixture.MakeAsset(ctx, "a", n1.ID)
	user := e.fixture.MakeUser(ctx, "u7")
	e.fixture.MakePermission(ctx, "p7", user.ID, []models.NodeID{n1.ID}, nil)
	require.NoError(t, e.tasks.Enqueue(ctx, nil, store_test.Now(), user.ID))

	assets, err := e.engine.ListGrantedAssets(ctx, user.ID, k1, query.CachePolicyHonorStaleness)
	require.NoError(t, err)
	require.True(t, assetIDs(assets)[a.ID.String()])
}
