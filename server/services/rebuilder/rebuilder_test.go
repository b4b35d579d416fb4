package rebuilder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/rebuilder"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/store_test"
)

func newRebuilder(t *testing.T) (*rebuilder.Rebuilder, *store_test.Fixture, func()) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	fixture := store_test.NewFixture(db, logFactory)
	grantStore := grants.NewGrantStore(db, logFactory)
	return rebuilder.NewRebuilder(grantStore, fixture.Nodes, logFactory), fixture, cleanup
}

func findRow(rows []*models.MappingNode, key models.NodeKey) *models.MappingNode {
	for _, r := range rows {
		if r.Key == key {
			return r
		}
	}
	return nil
}

// Scenario S1 from SPEC_FULL.md §8: a user granted a mid-tree node sees every asset under it,
// with the granted node itself carrying the full subtree count and its ancestor carrying the
// same count with granted=false.
func TestRebuild_GrantedNode(t *testing.T) {
	ctx := context.Background()
	rb, f, cleanup := newRebuilder(t)
	defer cleanup()

	k1 := models.NodeKey("1")
	k11 := models.NodeKey("1:2")
	n1 := f.MakeNode(ctx, k1)
	n11 := f.MakeNode(ctx, k11)
	f.MakeAsset(ctx, "a", n11.ID)
	f.MakeAsset(ctx, "b", n11.ID)
	user := f.MakeUser(ctx, "u1")
	f.MakePermission(ctx, "p1", user.ID, []models.NodeID{n11.ID}, nil)

	rows, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	root := findRow(rows, k1)
	require.NotNil(t, root)
	require.False(t, root.Granted)
	require.Equal(t, 2, root.AssetsAmount)

	leaf := findRow(rows, k11)
	require.NotNil(t, leaf)
	require.True(t, leaf.Granted)
	require.Equal(t, 2, leaf.AssetsAmount)
	require.Equal(t, n1.Key, leaf.ParentKey)
}

// Scenario S2: a user granted a single asset (not a node) gets an ancestor row for every node on
// the path to that asset's node, with asset_granted=true only on the node that actually holds it.
func TestRebuild_AssetGrantOnly(t *testing.T) {
	ctx := context.Background()
	rb, f, cleanup := newRebuilder(t)
	defer cleanup()

	k1 := models.NodeKey("1")
	k11 := models.NodeKey("1:2")
	f.MakeNode(ctx, k1)
	n11 := f.MakeNode(ctx, k11)
	asset := f.MakeAsset(ctx, "a", n11.ID)
	user := f.MakeUser(ctx, "u2")
	f.MakePermission(ctx, "p2", user.ID, nil, []models.AssetID{asset.ID})

	rows, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	root := findRow(rows, k1)
	require.False(t, root.Granted)
	require.False(t, root.AssetGranted)

	leaf := findRow(rows, k11)
	require.False(t, leaf.Granted)
	require.True(t, leaf.AssetGranted)
	require.Equal(t, 1, leaf.AssetsAmount)
}

// A user with no grants yields zero rows - an explicit boundary behaviour from SPEC_FULL.md §8.
func TestRebuild_NoGrants(t *testing.T) {
	ctx := context.Background()
	rb, f, cleanup := newRebuilder(t)
	defer cleanup()

	user := f.MakeUser(ctx, "nogrant")
	rows, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

// An asset linked into two nodes that are both granted must only be counted once in the shared
// ancestor's assets_amount.
func TestRebuild_AssetCountedOnceAcrossGrantedSubtrees(t *testing.T) {
	ctx := context.Background()
	rb, f, cleanup := newRebuilder(t)
	defer cleanup()

	root := models.NodeKey("1")
	left := models.NodeKey("1:2")
	right := models.NodeKey("1:3")
	f.MakeNode(ctx, root)
	nLeft := f.MakeNode(ctx, left)
	nRight := f.MakeNode(ctx, right)
	shared := f.MakeAsset(ctx, "shared", nLeft.ID, nRight.ID)
	user := f.MakeUser(ctx, "u3")
	f.MakePermission(ctx, "p3", user.ID, []models.NodeID{nLeft.ID, nRight.ID}, nil)

	rows, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)

	rootRow := findRow(rows, root)
	require.NotNil(t, rootRow)
	require.False(t, rootRow.Granted)
	// assets_amount at the shared ancestor dedupes the asset across both granted children.
	require.Equal(t, 1, rootRow.AssetsAmount)
	_ = shared
}

// Rebuilding twice in a row with no upstream change produces an identical row set (idempotence).
func TestRebuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	rb, f, cleanup := newRebuilder(t)
	defer cleanup()

	k1 := models.NodeKey("1")
	n1 := f.MakeNode(ctx, k1)
	user := f.MakeUser(ctx, "u4")
	f.MakePermission(ctx, "p4", user.ID, []models.NodeID{n1.ID}, nil)

	first, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)
	second, err := rb.Rebuild(ctx, nil, user.ID)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for _, r := range first {
		other := findRow(second, r.Key)
		require.NotNil(t, other)
		require.Equal(t, r.Granted, other.Granted)
		require.Equal(t, r.AssetGranted, other.AssetGranted)
		require.Equal(t, r.AssetsAmount, other.AssetsAmount)
	}
}
