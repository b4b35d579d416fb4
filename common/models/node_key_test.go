package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumpserver/mappingtree/common/models"
)

func TestNodeKey_Parent(t *testing.T) {
	assert.Equal(t, models.RootNodeKey, models.NodeKey("1").Parent())
	assert.Equal(t, models.NodeKey("1"), models.NodeKey("1:2").Parent())
	assert.Equal(t, models.NodeKey("1:2"), models.NodeKey("1:2:3").Parent())
}

func TestNodeKey_Ancestors(t *testing.T) {
	assert.Nil(t, models.NodeKey("1").Ancestors())
	assert.Equal(t, []models.NodeKey{"1"}, models.NodeKey("1:2").Ancestors())
	assert.Equal(t, []models.NodeKey{"1", "1:2"}, models.NodeKey("1:2:3").Ancestors())
}

func TestNodeKey_Depth(t *testing.T) {
	assert.Equal(t, 1, models.NodeKey("1").Depth())
	assert.Equal(t, 3, models.NodeKey("1:2:3").Depth())
}

func TestNodeKey_IsDescendantOf(t *testing.T) {
	assert.True(t, models.NodeKey("1:2").IsDescendantOf("1"))
	assert.True(t, models.NodeKey("1").IsDescendantOf("1"))
	assert.False(t, models.NodeKey("12").IsDescendantOf("1"))
	assert.False(t, models.NodeKey("1").IsDescendantOf("1:2"))
}

func TestNodeKey_IsStrictDescendantOf(t *testing.T) {
	assert.True(t, models.NodeKey("1:2").IsStrictDescendantOf("1"))
	assert.False(t, models.NodeKey("1").IsStrictDescendantOf("1"))
}

func TestNodeKey_SubtreePrefix(t *testing.T) {
	assert.Equal(t, "1:", models.NodeKey("1").SubtreePrefix())
}

func TestNodeKey_Validate(t *testing.T) {
	require.NoError(t, models.RootNodeKey.Validate())
	require.NoError(t, models.NodeKey("1:2:3").Validate())

	require.Error(t, models.NodeKey(":1").Validate())
	require.Error(t, models.NodeKey("1:").Validate())
	require.Error(t, models.NodeKey("1::2").Validate())
}
