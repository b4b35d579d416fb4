package mapping_tree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/store_test"
)

func newStore(t *testing.T) (*mapping_tree.MappingTreeStore, *store_test.Fixture, func()) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	fixture := store_test.NewFixture(db, logFactory)
	return mapping_tree.NewMappingTreeStore(db, logFactory), fixture, cleanup
}

func mappingRow(userID models.UserID, key, parentKey models.NodeKey, granted, assetGranted bool, assetsAmount int) *models.MappingNode {
	node := models.NewNode(store_test.Now(), key, parentKey, key.String())
	return models.NewMappingNode(userID, node, granted, assetGranted, assetsAmount)
}

// Replace is the only mutation: a second call wholly supersedes the first for that user.
func TestReplace_SupersedesPriorRows(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	user := f.MakeUser(ctx, "u1")
	first := []*models.MappingNode{
		mappingRow(user.ID, models.NodeKey("1"), models.RootNodeKey, true, false, 3),
	}
	require.NoError(t, s.Replace(ctx, nil, user.ID, first))

	got, err := s.ReadByKey(ctx, nil, user.ID, models.NodeKey("1"))
	require.NoError(t, err)
	require.True(t, got.Granted)

	second := []*models.MappingNode{
		mappingRow(user.ID, models.NodeKey("2"), models.RootNodeKey, true, false, 1),
	}
	require.NoError(t, s.Replace(ctx, nil, user.ID, second))

	_, err = s.ReadByKey(ctx, nil, user.ID, models.NodeKey("1"))
	require.Error(t, err, "the superseded row from the first Replace must be gone")
	require.True(t, gerror.IsNotFound(err))

	got, err = s.ReadByKey(ctx, nil, user.ID, models.NodeKey("2"))
	require.NoError(t, err)
	require.True(t, got.Granted)
}

// ReadByKey on an absent row is Q1 case (c)'s NotFound signal.
func TestReadByKey_NotFound(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	user := f.MakeUser(ctx, "u2")
	_, err := s.ReadByKey(ctx, nil, user.ID, models.NodeKey("1"))
	require.Error(t, err)
	require.True(t, gerror.IsNotFound(err))
}

// ListByParentKey is scoped to both the user and the exact parent key - siblings under a
// different parent, or rows belonging to another user, never leak in.
func TestListByParentKey_ScopedToUserAndParent(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	u1 := f.MakeUser(ctx, "u3")
	u2 := f.MakeUser(ctx, "u4")

	rows := []*models.MappingNode{
		mappingRow(u1.ID, models.NodeKey("1"), models.RootNodeKey, true, false, 1),
		mappingRow(u1.ID, models.NodeKey("2"), models.RootNodeKey, true, false, 1),
		mappingRow(u1.ID, models.NodeKey("1:3"), models.NodeKey("1"), true, false, 1),
	}
	require.NoError(t, s.Replace(ctx, nil, u1.ID, rows))
	require.NoError(t, s.Replace(ctx, nil, u2.ID, []*models.MappingNode{
		mappingRow(u2.ID, models.NodeKey("1"), models.RootNodeKey, true, false, 1),
	}))

	children, err := s.ListByParentKey(ctx, nil, u1.ID, models.RootNodeKey)
	require.NoError(t, err)
	require.Len(t, children, 2)
}

// ListGrantedDescendants returns only granted=true rows strictly under the prefix.
func TestListGrantedDescendants_ExcludesUngrantedAndSelf(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	user := f.MakeUser(ctx, "u5")
	rows := []*models.MappingNode{
		mappingRow(user.ID, models.NodeKey("1"), models.RootNodeKey, false, false, 2),
		mappingRow(user.ID, models.NodeKey("1:2"), models.NodeKey("1"), true, false, 1),
		mappingRow(user.ID, models.NodeKey("1:3"), models.NodeKey("1"), false, false, 1),
	}
	require.NoError(t, s.Replace(ctx, nil, user.ID, rows))

	granted, err := s.ListGrantedDescendants(ctx, nil, user.ID, models.NodeKey("1"))
	require.NoError(t, err)
	require.Len(t, granted, 1)
	require.Equal(t, models.NodeKey("1:2"), granted[0].Key)
}

// ListAssetGrantedUngranted returns only asset_granted=true, granted=false rows under the prefix.
func TestListAssetGrantedUngranted(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	user := f.MakeUser(ctx, "u6")
	rows := []*models.MappingNode{
		mappingRow(user.ID, models.NodeKey("1"), models.RootNodeKey, false, false, 2),
		mappingRow(user.ID, models.NodeKey("1:2"), models.NodeKey("1"), false, true, 1),
		mappingRow(user.ID, models.NodeKey("1:3"), models.NodeKey("1"), true, true, 1),
	}
	require.NoError(t, s.Replace(ctx, nil, user.ID, rows))

	rowsOut, err := s.ListAssetGrantedUngranted(ctx, nil, user.ID, models.NodeKey("1"))
	require.NoError(t, err)
	require.Len(t, rowsOut, 1)
	require.Equal(t, models.NodeKey("1:2"), rowsOut[0].Key)
}

// DeleteAllForUser clears every row for that user and leaves other users untouched.
func TestDeleteAllForUser(t *testing.T) {
	ctx := context.Background()
	s, f, cleanup := newStore(t)
	defer cleanup()

	u1 := f.MakeUser(ctx, "u7")
	u2 := f.MakeUser(ctx, "u8")
	require.NoError(t, s.Replace(ctx, nil, u1.ID, []*models.MappingNode{
		mappingRow(u1.ID, models.NodeKey("1"), models.RootNodeKey, true, false, 1),
	}))
	require.NoError(t, s.Replace(ctx, nil, u2.ID, []*models.MappingNode{
		mappingRow(u2.ID, models.NodeKey("1"), models.RootNodeKey, true, false, 1),
	}))

	require.NoError(t, s.DeleteAllForUser(ctx, nil, u1.ID))

	_, err := s.ReadByKey(ctx, nil, u1.ID, models.NodeKey("1"))
	require.True(t, gerror.IsNotFound(err))

	got, err := s.ReadByKey(ctx, nil, u2.ID, models.NodeKey("1"))
	require.NoError(t, err)
	require.True(t, got.Granted)
}
