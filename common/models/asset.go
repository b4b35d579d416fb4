package models

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const AssetResourceKind ResourceKind = "asset"

type AssetID struct {
	ResourceID
}

func NewAssetID() AssetID {
	return AssetID{ResourceID: NewResourceID(AssetResourceKind)}
}

func AssetIDFromResourceID(id ResourceID) AssetID {
	return AssetID{ResourceID: id}
}

// Platform classifies an asset for tree-serialization purposes; see Asset.IconSkin.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformOther   Platform = "other"
)

// Asset is a managed host. It belongs to zero or more Nodes (many-to-many, see AssetNode) and
// carries an organization tag used to scope it within a tenant.
type Asset struct {
	ID        AssetID `json:"id" goqu:"skipupdate" db:"asset_id"`
	CreatedAt Time    `json:"created_at" goqu:"skipupdate" db:"asset_created_at"`
	UpdatedAt Time    `json:"updated_at" db:"asset_updated_at"`
	Name           ResourceName `json:"name" db:"asset_name"`
	Platform       Platform     `json:"platform" db:"asset_platform"`
	Protocol       string       `json:"protocol" db:"asset_protocol"`
	OrganizationID ResourceID   `json:"organization_id" goqu:"skipupdate" db:"asset_organization_id"`
}

func NewAsset(now Time, name ResourceName, platform Platform, protocol string, organizationID ResourceID) *Asset {
	return &Asset{
		ID:             NewAssetID(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Name:           name,
		Platform:       platform,
		Protocol:       protocol,
		OrganizationID: organizationID,
	}
}

func (m *Asset) GetKind() ResourceKind {
	return AssetResourceKind
}

func (m *Asset) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Asset) GetID() ResourceID {
	return m.ID.ResourceID
}

// IconSkin implements the tree-serialization contract: a case-insensitive match against the
// asset's platform base, falling back to a generic file icon.
func (m *Asset) IconSkin() string {
	switch Platform(strings.ToLower(string(m.Platform))) {
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	default:
		return "file"
	}
}

// NoCheck implements the tree-serialization contract: assets without the ssh protocol render
// as unselectable in the UI tree.
func (m *Asset) NoCheck() bool {
	return !strings.EqualFold(m.Protocol, "ssh")
}

func (m *Asset) Validate() error {
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
	if !m.OrganizationID.Valid() {
		result = multierror.Append(result, errors.New("error organization id must be set"))
	}
	return result.ErrorOrNil()
}

// AssetNode is a many-to-many link row between an Asset and a Node. Creating or deleting one is
// an `asset.nodes` edge change and must raise rebuild tasks for users_affected_by_asset(A) (C6).
type AssetNode struct {
	AssetID AssetID `json:"asset_id" goqu:"skipupdate" db:"asset_node_asset_id"`
	NodeID  NodeID  `json:"node_id" goqu:"skipupdate" db:"asset_node_node_id"`
}
