package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store/store_test"
	"github.com/jumpserver/mappingtree/server/store/users"
)

// TestResourceAlreadyExistsThrown tests that MakeStandardDBError provides the correct error code
// when we attempt to create a resource whose primary key already exists.
func TestResourceAlreadyExistsThrown(t *testing.T) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	defer cleanup()

	store := users.NewUserStore(db, logFactory)
	user := models.NewUser(store_test.Now(), models.ResourceName("frankieboi"))

	require.NoError(t, store.Create(context.Background(), nil, user))

	err = store.Create(context.Background(), nil, user)
	require.Error(t, err)
	require.True(t, gerror.IsAlreadyExists(err))
}

// TestResourceNotFoundThrown tests that reading a resource that doesn't exist returns a NotFound
// error (produced by ResourceTable.ReadIn when no row matches).
func TestResourceNotFoundThrown(t *testing.T) {
	logFactory := store_test.NewTestLogFactory()
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	defer cleanup()

	store := users.NewUserStore(db, logFactory)
	_, err = store.Read(context.Background(), nil, models.NewUserID())
	require.Error(t, err)
	require.True(t, gerror.IsNotFound(err))
}
