package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const RebuildUserTreeTaskResourceKind ResourceKind = "rebuild_user_tree_task"

type RebuildUserTreeTaskID struct {
	ResourceID
}

// NewRebuildUserTreeTaskID derives a deterministic id from the user id alone, so that inserting a
// task for a user that already has one pending is a no-op conflict rather than a duplicate row -
// this is what gives "multiple tasks for the same user coalesce" its implementation (C6/§3).
func NewRebuildUserTreeTaskID(userID UserID) RebuildUserTreeTaskID {
	return RebuildUserTreeTaskID{ResourceID: NewResourceIDFromUniqueData(RebuildUserTreeTaskResourceKind, userID.String())}
}

// RebuildUserTreeTask records that UserID's mapping tree needs recomputing. Rows are owned
// exclusively by the invalidation bus (C6): inserted on any upstream edge change affecting the
// user, and deleted only after the corresponding rebuild transaction (C4+C3) commits.
type RebuildUserTreeTask struct {
	ID        RebuildUserTreeTaskID `json:"id" goqu:"skipupdate" db:"rebuild_user_tree_task_id"`
	UserID    UserID                `json:"user_id" goqu:"skipupdate" db:"rebuild_user_tree_task_user_id"`
	CreatedAt Time                  `json:"created_at" goqu:"skipupdate" db:"rebuild_user_tree_task_created_at"`
}

func NewRebuildUserTreeTask(now Time, userID UserID) *RebuildUserTreeTask {
	return &RebuildUserTreeTask{
		ID:        NewRebuildUserTreeTaskID(userID),
		UserID:    userID,
		CreatedAt: now,
	}
}

func (m *RebuildUserTreeTask) GetKind() ResourceKind {
	return RebuildUserTreeTaskResourceKind
}

func (m *RebuildUserTreeTask) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *RebuildUserTreeTask) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *RebuildUserTreeTask) Validate() error {
	var result *multierror.Error
	if !m.UserID.Valid() {
		result = multierror.Append(result, errors.New("error user id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	return result.ErrorOrNil()
}
