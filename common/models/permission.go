package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const PermissionResourceKind ResourceKind = "permission"

type PermissionID struct {
	ResourceID
}

func NewPermissionID() PermissionID {
	return PermissionID{ResourceID: NewResourceID(PermissionResourceKind)}
}

func PermissionIDFromResourceID(id ResourceID) PermissionID {
	return PermissionID{ResourceID: id}
}

// Permission associates four sets - users, groups, nodes and assets. A user U is linked to a
// Permission P iff U is in P's user set directly, or U belongs to a group in P's group set. Grants
// are pure membership: there are no rules or conditions attached to a Permission.
type Permission struct {
	ID        PermissionID `json:"id" goqu:"skipupdate" db:"permission_id"`
	CreatedAt Time         `json:"created_at" goqu:"skipupdate" db:"permission_created_at"`
	UpdatedAt Time         `json:"updated_at" db:"permission_updated_at"`
	Name        ResourceName `json:"name" db:"permission_name"`
	Description string       `json:"description" db:"permission_description"`
}

func NewPermission(now Time, name ResourceName, description string) *Permission {
	return &Permission{
		ID:          NewPermissionID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        name,
		Description: description,
	}
}

func (m *Permission) GetKind() ResourceKind {
	return PermissionResourceKind
}

func (m *Permission) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Permission) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Permission) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// The four many-to-many link tables that make up a Permission's sets. Each is a thin link row;
// writes to any of them are upstream edge changes that C6 must translate into rebuild tasks.

type PermissionUser struct {
	PermissionID PermissionID `json:"permission_id" goqu:"skipupdate" db:"permission_user_permission_id"`
	UserID       UserID       `json:"user_id" goqu:"skipupdate" db:"permission_user_user_id"`
}

type PermissionGroup struct {
	PermissionID PermissionID `json:"permission_id" goqu:"skipupdate" db:"permission_group_permission_id"`
	GroupID      GroupID      `json:"group_id" goqu:"skipupdate" db:"permission_group_group_id"`
}

type PermissionNode struct {
	PermissionID PermissionID `json:"permission_id" goqu:"skipupdate" db:"permission_node_permission_id"`
	NodeID       NodeID       `json:"node_id" goqu:"skipupdate" db:"permission_node_node_id"`
}

type PermissionAsset struct {
	PermissionID PermissionID `json:"permission_id" goqu:"skipupdate" db:"permission_asset_permission_id"`
	AssetID      AssetID      `json:"asset_id" goqu:"skipupdate" db:"permission_asset_asset_id"`
}

// M2MRelation identifies one of the six authoritative many-to-many relations the write layer can
// report changes on through the event interface (see server/services/invalidation).
type M2MRelation string

const (
	RelationPermissionUsers  M2MRelation = "permission.users"
	RelationPermissionGroups M2MRelation = "permission.groups"
	RelationPermissionNodes  M2MRelation = "permission.nodes"
	RelationPermissionAssets M2MRelation = "permission.assets"
	RelationGroupMembers     M2MRelation = "group.members"
	RelationAssetNodes       M2MRelation = "asset.nodes"
)

// M2MAction mirrors Django's m2m_changed signal actions, the event vocabulary this design's
// event interface (§6) is modelled on.
type M2MAction string

const (
	ActionPostAdd    M2MAction = "post_add"
	ActionPostRemove M2MAction = "post_remove"
	ActionPreClear   M2MAction = "pre_clear"
)
