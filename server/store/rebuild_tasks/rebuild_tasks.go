package rebuild_tasks

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
)

// RebuildTaskStore is the exclusive owner of RebuildUserTreeTask rows (C6 storage). Tasks for the
// same user coalesce onto one row because RebuildUserTreeTaskID is derived deterministically from
// the user id (see models.NewRebuildUserTreeTaskID); Enqueue is therefore an idempotent insert-or-noop.
type RebuildTaskStore struct {
	table *store.ResourceTable
	db    *store.DB
	logger.Log
}

func NewRebuildTaskStore(db *store.DB, logFactory logger.LogFactory) *RebuildTaskStore {
	return &RebuildTaskStore{
		table: store.NewResourceTable(db, logFactory, &models.RebuildUserTreeTask{}),
		db:    db,
		Log:   logFactory("RebuildTaskStore"),
	}
}

// Enqueue inserts a pending task for userID within txOrNil, doing nothing if one already exists.
// This is what gives "multiple tasks for the same user coalesce" its implementation.
func (s *RebuildTaskStore) Enqueue(ctx context.Context, txOrNil *store.Tx, now models.Time, userID models.UserID) error {
	task := models.NewRebuildUserTreeTask(now, userID)
	err := s.table.Create(ctx, txOrNil, task)
	if err != nil {
		if gerror.IsAlreadyExists(err) {
			return nil // a task for this user is already pending
		}
		return err
	}
	return nil
}

// HasAnyPendingTask reports whether any rebuild task exists anywhere in the system. Used to gate
// permission deletion (CannotRemovePermNow, §4.6).
func (s *RebuildTaskStore) HasAnyPendingTask(ctx context.Context, txOrNil *store.Tx) (bool, error) {
	var count int64
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From("rebuild_user_tree_task").Select(goqu.COUNT("*"))
		found, err := r.ScanValContext(ctx, &count, ds.String()+";")
		if err != nil {
			return err
		}
		if !found {
			count = 0
		}
		return nil
	})
	if err != nil {
		return false, store.MakeStandardDBError(err)
	}
	return count > 0, nil
}

// CountPending returns the total number of pending rebuild tasks across all users, used only to
// feed the task runner's queue-depth metric.
func (s *RebuildTaskStore) CountPending(ctx context.Context, txOrNil *store.Tx) (int64, error) {
	var count int64
	err := s.db.Read2(txOrNil, func(r store.Reader) error {
		ds := r.From("rebuild_user_tree_task").Select(goqu.COUNT("*"))
		found, err := r.ScanValContext(ctx, &count, ds.String()+";")
		if err != nil {
			return err
		}
		if !found {
			count = 0
		}
		return nil
	})
	if err != nil {
		return 0, store.MakeStandardDBError(err)
	}
	return count, nil
}

// HasPendingTask reports whether userID currently has a pending rebuild task - the staleness
// check C5 performs before serving a read.
func (s *RebuildTaskStore) HasPendingTask(ctx context.Context, txOrNil *store.Tx, userID models.UserID) (bool, error) {
	task := &models.RebuildUserTreeTask{}
	err := s.table.ReadWhere(ctx, txOrNil, task, goqu.Ex{"rebuild_user_tree_task_user_id": userID})
	if err != nil {
		if gerror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PickOldest returns the oldest pending task whose user id is not in the excludeUserIDs set, or a
// NotFound error if none remain - the loop driver for C8's task runner.
func (s *RebuildTaskStore) PickOldest(ctx context.Context, txOrNil *store.Tx, excludeUserIDs []models.UserID) (*models.RebuildUserTreeTask, error) {
	task := &models.RebuildUserTreeTask{}
	var where []exp.Expression
	if len(excludeUserIDs) > 0 {
		excluded := make([]interface{}, len(excludeUserIDs))
		for i, id := range excludeUserIDs {
			excluded[i] = id
		}
		where = append(where, goqu.C("rebuild_user_tree_task_user_id").NotIn(excluded...))
	}
	ds := goqu.From("rebuild_user_tree_task").Where(where...).Order(goqu.I("rebuild_user_tree_task_created_at").Asc()).Limit(1)
	err := s.table.ReadIn(ctx, txOrNil, task, ds)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteForUserCreatedBefore deletes every task row for userID created at or before cutoff - run
// after a rebuild transaction completes its mutations, immediately before the CAS to COMMITTING.
func (s *RebuildTaskStore) DeleteForUserCreatedBefore(ctx context.Context, txOrNil *store.Tx, userID models.UserID, cutoff models.Time) error {
	return s.table.DeleteWhere(ctx, txOrNil, goqu.Ex{
		"rebuild_user_tree_task_user_id": userID,
	}, goqu.C("rebuild_user_tree_task_created_at").Lte(cutoff))
}
