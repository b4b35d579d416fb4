package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const GroupMembershipResourceKind ResourceKind = "group_membership"

type GroupMembershipID struct {
	ResourceID
}

func NewGroupMembershipID() GroupMembershipID {
	return GroupMembershipID{ResourceID: NewResourceID(GroupMembershipResourceKind)}
}

// GroupMembership links a Group to a User that belongs to it. Creating or deleting a membership
// row is a `group.members` edge change and must raise a rebuild task for MemberUserID (see C6).
type GroupMembership struct {
	ID        GroupMembershipID `json:"id" goqu:"skipupdate" db:"access_control_group_membership_id"`
	CreatedAt Time              `json:"created_at" goqu:"skipupdate" db:"access_control_group_membership_created_at"`
	GroupID      GroupID    `json:"group_id" goqu:"skipupdate" db:"access_control_group_membership_group_id"`
	MemberUserID UserID     `json:"member_user_id" goqu:"skipupdate" db:"access_control_group_membership_member_user_id"`
	SourceSystem SystemName `json:"source_system" goqu:"skipupdate" db:"access_control_group_membership_source_system"`
}

func NewGroupMembership(now Time, groupID GroupID, memberUserID UserID, sourceSystem SystemName) *GroupMembership {
	return &GroupMembership{
		ID:           NewGroupMembershipID(),
		CreatedAt:    now,
		GroupID:      groupID,
		MemberUserID: memberUserID,
		SourceSystem: sourceSystem,
	}
}

func (m *GroupMembership) GetKind() ResourceKind {
	return GroupMembershipResourceKind
}

func (m *GroupMembership) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *GroupMembership) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *GroupMembership) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if !m.GroupID.Valid() {
		result = multierror.Append(result, errors.New("error group id must be set"))
	}
	if !m.MemberUserID.Valid() {
		result = multierror.Append(result, errors.New("error member user id must be set"))
	}
	return result.ErrorOrNil()
}
