package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const MappingNodeResourceKind ResourceKind = "mapping_node"

type MappingNodeID struct {
	ResourceID
}

// NewMappingNodeID derives a deterministic id from the (user, key) pair so that repeated rebuilds
// of the same user produce stable row identities across a replace() cycle.
func NewMappingNodeID(userID UserID, key NodeKey) MappingNodeID {
	return MappingNodeID{ResourceID: NewResourceIDFromUniqueData(MappingNodeResourceKind, userID.String()+"/"+key.String())}
}

// MappingNode is a per-user denormalized projection row (the "mapping tree"). Rows are owned
// exclusively by the mapping-tree store (C3): created lazily on first rebuild, replaced wholesale
// on every subsequent rebuild, and deleted when the owning user is deleted.
//
// Invariant A (completeness): the set of rows for U is the minimal set of nodes that are
// node-granted or asset-granted for U, or ancestors of such a node.
// Invariant B (disjoint grants): if Granted is true for N, no proper descendant of N carries an
// independent row for authorization purposes - the subtree is fully granted by N alone.
// Invariant C (count): AssetsAmount(N) equals the count of effective-granted assets of U rooted
// at N; for a Granted node this equals every asset under N's subtree.
type MappingNode struct {
	ID     MappingNodeID `json:"id" goqu:"skipupdate" db:"mapping_node_id"`
	UserID UserID        `json:"user_id" goqu:"skipupdate" db:"mapping_node_user_id"`
	Key       NodeKey `json:"key" goqu:"skipupdate" db:"mapping_node_key"`
	ParentKey NodeKey `json:"parent_key" goqu:"skipupdate" db:"mapping_node_parent_key"`
	NodeID    NodeID  `json:"node_id" goqu:"skipupdate" db:"mapping_node_node_id"`
	Value     string  `json:"value" db:"mapping_node_value"`
	// Granted is true iff this node is directly node-granted to UserID.
	Granted bool `json:"granted" db:"mapping_node_granted"`
	// AssetGranted is true iff at least one directly asset-granted asset of UserID lives in
	// this node.
	AssetGranted bool `json:"asset_granted" db:"mapping_node_asset_granted"`
	// AssetsAmount is the count of effective-granted assets of UserID rooted at this node's
	// subtree, precomputed by the rebuilder (C4).
	AssetsAmount int `json:"assets_amount" db:"mapping_node_assets_amount"`
}

func NewMappingNode(userID UserID, node *Node, granted, assetGranted bool, assetsAmount int) *MappingNode {
	return &MappingNode{
		ID:           NewMappingNodeID(userID, node.Key),
		UserID:       userID,
		Key:          node.Key,
		ParentKey:    node.ParentKey,
		NodeID:       node.ID,
		Value:        node.Value,
		Granted:      granted,
		AssetGranted: assetGranted,
		AssetsAmount: assetsAmount,
	}
}

func (m *MappingNode) GetKind() ResourceKind {
	return MappingNodeResourceKind
}

func (m *MappingNode) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *MappingNode) Validate() error {
	var result *multierror.Error
	if !m.UserID.Valid() {
		result = multierror.Append(result, errors.New("error user id must be set"))
	}
	if err := m.Key.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if !m.NodeID.Valid() {
		result = multierror.Append(result, errors.New("error node id must be set"))
	}
	if m.AssetsAmount < 0 {
		result = multierror.Append(result, errors.New("error assets amount must not be negative"))
	}
	return result.ErrorOrNil()
}

// MappingNodeFilter narrows a list() query against the mapping-tree store to one of the index-backed
// access patterns C5 needs: by parent key (Q2), by key (Q1 lookup), or by granted/asset-granted flag
// scoped under a key prefix (Q1 case b partial cover).
type MappingNodeFilter struct {
	UserID UserID
	// Key, if set, matches rows with exactly this key.
	Key *NodeKey
	// ParentKey, if set, matches rows with exactly this parent key.
	ParentKey *NodeKey
	// KeyPrefix, if set, matches rows whose key is K or a descendant of K (subtree_match(K)).
	KeyPrefix *NodeKey
	// Granted, if set, additionally filters on the Granted flag.
	Granted *bool
	// AssetGranted, if set, additionally filters on the AssetGranted flag.
	AssetGranted *bool
}
