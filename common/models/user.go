package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const UserResourceKind ResourceKind = "user"

// NoUser is a zero-value user id, used as a shortcut for functions that support an optional user.
var NoUser = UserID{}

type UserID struct {
	ResourceID
}

func NewUserID() UserID {
	return UserID{ResourceID: NewResourceID(UserResourceKind)}
}

func UserIDFromResourceID(id ResourceID) UserID {
	return UserID{ResourceID: id}
}

// User is a bastion account that can be granted access to nodes and assets, directly or via Group
// membership. The core engine only needs a User's identity; profile and auth concerns live upstream.
type User struct {
	ID        UserID       `json:"id" goqu:"skipupdate" db:"user_id"`
	CreatedAt Time         `json:"created_at" goqu:"skipupdate" db:"user_created_at"`
	Username  ResourceName `json:"username" db:"user_username"`
}

func NewUser(now Time, username ResourceName) *User {
	return &User{
		ID:        NewUserID(),
		CreatedAt: now,
		Username:  username,
	}
}

func (m *User) GetKind() ResourceKind {
	return UserResourceKind
}

func (m *User) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *User) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *User) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if err := m.Username.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
