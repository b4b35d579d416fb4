package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const NodeResourceKind ResourceKind = "node"

type NodeID struct {
	ResourceID
}

func NewNodeID() NodeID {
	return NodeID{ResourceID: NewResourceID(NodeResourceKind)}
}

func NodeIDFromResourceID(id ResourceID) NodeID {
	return NodeID{ResourceID: id}
}

// Node is a position in the asset tree, addressed by a NodeKey. Validate checks that ParentKey
// equals Key.Parent(); the store does not check on create that a node with ParentKey exists.
type Node struct {
	ID        NodeID `json:"id" goqu:"skipupdate" db:"node_id"`
	CreatedAt Time   `json:"created_at" goqu:"skipupdate" db:"node_created_at"`
	UpdatedAt Time   `json:"updated_at" db:"node_updated_at"`
	Key       NodeKey `json:"key" goqu:"skipupdate" db:"node_key"`
	ParentKey NodeKey `json:"parent_key" goqu:"skipupdate" db:"node_parent_key"`
	Value     string  `json:"value" db:"node_value"`
	// AssetsAmount is a denormalized total asset count under this node's subtree, independent of
	// any user's grants. Backfilled by migration 11 for rows where it is 0; AssetNodeStore.Link and
	// Unlink do not update it.
	AssetsAmount int `json:"assets_amount" db:"node_assets_amount"`
}

func NewNode(now Time, key, parentKey NodeKey, value string) *Node {
	return &Node{
		ID:        NewNodeID(),
		CreatedAt: now,
		UpdatedAt: now,
		Key:       key,
		ParentKey: parentKey,
		Value:     value,
	}
}

func (m *Node) GetKind() ResourceKind {
	return NodeResourceKind
}

func (m *Node) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Node) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Node) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if err := m.Key.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.ParentKey != m.Key.Parent() {
		result = multierror.Append(result, errors.Errorf("error parent key %q does not match the key's own parent %q", m.ParentKey, m.Key.Parent()))
	}
	return result.ErrorOrNil()
}
