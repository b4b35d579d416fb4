package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const GroupResourceKind ResourceKind = "group"

type GroupID struct {
	ResourceID
}

func NewGroupID() GroupID {
	return GroupID{ResourceID: NewResourceID(GroupResourceKind)}
}

func GroupIDFromResourceID(id ResourceID) GroupID {
	return GroupID{ResourceID: id}
}

type GroupMetadata struct {
	ID        GroupID `json:"id" goqu:"skipupdate" db:"access_control_group_id"`
	CreatedAt Time    `json:"created_at" goqu:"skipupdate" db:"access_control_group_created_at"`
	UpdatedAt Time    `json:"updated_at" db:"access_control_group_updated_at"`
	DeletedAt *Time   `json:"deleted_at,omitempty" db:"access_control_group_deleted_at"`
	ETag      ETag    `json:"etag" db:"access_control_group_etag"`
}

// Group is a named set of users. A permission that references a Group authorizes every current
// member of the group; membership changes are picked up the next time affected users are rebuilt.
type Group struct {
	GroupMetadata
	Name        ResourceName `json:"name" db:"access_control_group_name"`
	Description string       `json:"description" db:"access_control_group_description"`
}

func NewGroup(now Time, name ResourceName, description string) *Group {
	return &Group{
		GroupMetadata: GroupMetadata{
			ID:        NewGroupID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:        name,
		Description: description,
	}
}

func (m *Group) GetKind() ResourceKind {
	return GroupResourceKind
}

func (m *Group) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Group) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Group) GetUpdatedAt() Time {
	return m.UpdatedAt
}

func (m *Group) SetUpdatedAt(t Time) {
	m.UpdatedAt = t
}

func (m *Group) GetETag() ETag {
	return m.ETag
}

func (m *Group) SetETag(eTag ETag) {
	m.ETag = eTag
}

func (m *Group) GetDeletedAt() *Time {
	return m.DeletedAt
}

func (m *Group) SetDeletedAt(deletedAt *Time) {
	m.DeletedAt = deletedAt
}

func (m *Group) IsUnreachable() bool {
	return m.DeletedAt != nil
}

func (m *Group) Validate() error {
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
