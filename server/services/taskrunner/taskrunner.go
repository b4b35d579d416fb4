// Package taskrunner implements C8: a single-process singleton executor that drains pending
// RebuildUserTreeTask rows with bounded concurrency, serializing each user's rebuild through C7.
package taskrunner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jumpserver/mappingtree/common/gerror"
	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/services/lock"
	"github.com/jumpserver/mappingtree/server/services/rebuilder"
	"github.com/jumpserver/mappingtree/server/store"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
)

// NrWorkers is the number of goroutines draining the pending task queue concurrently.
var NrWorkers = 4

// PollInterval is how often an idle worker polls for new tasks if it isn't woken by Submit.
var PollInterval = 2 * time.Second

// TaskRunner is the C8 singleton. One instance exists per process; Start launches its worker pool.
type TaskRunner struct {
	db          *store.DB
	tasks       *rebuild_tasks.RebuildTaskStore
	mappingTree *mapping_tree.MappingTreeStore
	rebuilder   *rebuilder.Rebuilder
	locker      lock.Locker

	// failed is the per-invocation skip set from §4.8 step 5: a user whose rebuild just failed is
	// skipped for the remainder of this drain so one bad user can't starve the rest of the queue.
	// It is cleared by every Submit (and by ResetFailed), so a subsequent submit() retries.
	failed   map[string]struct{}
	failedMu sync.Mutex

	wakeChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	startMu  sync.Mutex

	logger.Log
}

func NewTaskRunner(
	db *store.DB,
	tasks *rebuild_tasks.RebuildTaskStore,
	mappingTree *mapping_tree.MappingTreeStore,
	rebuilder *rebuilder.Rebuilder,
	locker lock.Locker,
	logFactory logger.LogFactory,
) *TaskRunner {
	return &TaskRunner{
		db:          db,
		tasks:       tasks,
		mappingTree: mappingTree,
		rebuilder:   rebuilder,
		locker:      locker,
		failed:      make(map[string]struct{}),
		wakeChan:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		Log:         logFactory("TaskRunner"),
	}
}

// Start launches the worker pool. Each worker runs an independent drain loop, woken by Submit or
// by PollInterval, whichever comes first.
func (r *TaskRunner) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return
	}
	r.started = true

	for i := 0; i < NrWorkers; i++ {
		r.wg.Add(1)
		go r.workerLoop(i)
	}
}

// Shutdown stops every worker, waiting for in-flight rebuilds to finish their current user.
func (r *TaskRunner) Shutdown() {
	close(r.stopChan)
	r.wg.Wait()
}

// Submit is an idempotent kick: it clears the failed set so every pending user is eligible again,
// and if a worker is idle it will immediately attempt to pick up pending tasks rather than
// waiting out the rest of PollInterval.
func (r *TaskRunner) Submit() {
	r.ResetFailed()
	select {
	case r.wakeChan <- struct{}{}:
	default:
	}
}

func (r *TaskRunner) workerLoop(workerNr int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		processed := r.drainOnce(workerNr)
		if !processed {
			select {
			case <-r.stopChan:
				return
			case <-r.wakeChan:
			case <-time.After(PollInterval):
			}
		}
	}
}

// drainOnce processes at most one pending task and reports whether it found one to process.
func (r *TaskRunner) drainOnce(workerNr int) bool {
	r.reportQueueDepth(context.Background())
	task, err := r.tasks.PickOldest(context.Background(), nil, r.failedUserIDs())
	if err != nil {
		if gerror.IsNotFound(err) {
			return false // no eligible task remains
		}
		r.Errorf("worker %d: error picking next rebuild task: %s", workerNr, err)
		return false
	}

	err = r.RunForUser(context.Background(), task.UserID)
	if err != nil {
		if gerror.IsSomeoneIsDoingThis(err) {
			// Another worker already holds this user's lock; don't count it as a failure, just
			// move on - it will be picked up again once that worker releases it.
			return true
		}
		r.Warnf("worker %d: rebuild failed for user %s: %s", workerNr, task.UserID, err)
		r.markFailed(task.UserID)
		tasksFailedTotal.Inc()
		return true
	}
	tasksDrainedTotal.Inc()
	return true
}

// reportQueueDepth refreshes the pending-task gauge; called once per drain loop iteration so the
// gauge tracks queue depth without a dedicated polling goroutine.
func (r *TaskRunner) reportQueueDepth(ctx context.Context) {
	count, err := r.tasks.CountPending(ctx, nil)
	if err != nil {
		return
	}
	pendingTasksGauge.Set(float64(count))
}

// RunForUser is the synchronous path used both by worker drain loops and by C5's staleness check.
// It acquires the user's lock in DOING, then within one transaction runs C4+C3, deletes the task
// rows, and CAS-swaps to COMMITTING as the transaction's last statement - a CAS failure there rolls
// the whole write back, so a TTL-expiry race can never leave a commit the protocol didn't sanction.
func (r *TaskRunner) RunForUser(ctx context.Context, userID models.UserID) error {
	key := models.LockKey(userID)
	doing := newHolderValue()
	committing := doing.Committing()

	acquired, err := r.locker.Acquire(ctx, key, doing, lock.DefaultTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return gerror.NewErrSomeoneIsDoingThis("lock for user " + userID.String() + " is already held")
	}

	cutoff := models.NewTime(time.Now())
	runErr := r.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		rows, err := r.rebuilder.Rebuild(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := r.mappingTree.Replace(ctx, tx, userID, rows); err != nil {
			return err
		}
		if err := r.tasks.DeleteForUserCreatedBefore(ctx, tx, userID, cutoff); err != nil {
			return err
		}
		// Last statement inside the transaction: a CAS failure here means the TTL expired and
		// another holder took over, so the rebuild+replace+delete above must not be allowed to
		// commit either.
		return r.locker.ChangeState(ctx, key, doing, committing)
	})
	if runErr != nil {
		// Roll back already happened inside WithTx; release the lock so another worker can retry.
		_ = r.locker.Release(ctx, key, doing, committing)
		return runErr
	}

	return r.locker.Release(ctx, key, doing, committing)
}

func (r *TaskRunner) failedUserIDs() []models.UserID {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	ids := make([]models.UserID, 0, len(r.failed))
	for k := range r.failed {
		ids = append(ids, models.UserIDFromResourceID(mustParseResourceID(k)))
	}
	return ids
}

func (r *TaskRunner) markFailed(userID models.UserID) {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	r.failed[userID.String()] = struct{}{}
}

// ResetFailed clears the per-invocation failed set; a fresh Submit() after this will retry every
// user again, matching §4.8's "a subsequent submit() retries" termination note.
func (r *TaskRunner) ResetFailed() {
	r.failedMu.Lock()
	defer r.failedMu.Unlock()
	r.failed = make(map[string]struct{})
}

func newHolderValue() models.LockValue {
	return models.NewLockValue(randString(8), fmt.Sprintf("worker-%d", rand.Int63()), time.Now().Unix())
}

func randString(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}

func mustParseResourceID(str string) models.ResourceID {
	id, err := models.ParseResourceID(str)
	if err != nil {
		panic(err)
	}
	return id
}
