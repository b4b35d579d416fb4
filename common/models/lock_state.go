package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LockStage is one of the two phases of the per-user lock's value (C7). A holder acquires in
// StageDoing, then CAS-swaps to StageCommitting immediately before its outer transaction commits.
type LockStage string

const (
	StageDoing      LockStage = "DOING"
	StageCommitting LockStage = "COMMITTING"
)

const lockValueSeparator = ":"

// LockKeyPrefix is the namespace prefix for per-user lock keys: "update_mapping_node_task:<user_id>".
const LockKeyPrefix = "update_mapping_node_task"

// LockKey returns the named-lock key for a user, per the §3 lock row format.
func LockKey(userID UserID) string {
	return LockKeyPrefix + lockValueSeparator + userID.String()
}

// LockValue is the holder-identifying value written into a lock row: "<stage>:<rand>:<thread>:<timestamp>".
// Two LockValues are compare-and-set equal iff every field matches; a holder that lost its TTL window
// and finds a different rand/thread/timestamp on its own key knows another worker has taken over.
type LockValue struct {
	Stage     LockStage
	Rand      string
	Thread    string
	Timestamp int64
}

// NewLockValue mints a DOING-stage value for a new holder. rand and thread should uniquely
// identify the acquiring goroutine/worker within the process; timestamp is Unix seconds.
func NewLockValue(rand, thread string, timestamp int64) LockValue {
	return LockValue{Stage: StageDoing, Rand: rand, Thread: thread, Timestamp: timestamp}
}

// Committing returns a copy of v with its stage advanced to COMMITTING, keeping the same holder
// identity - this is the value passed to C7's change_state CAS.
func (v LockValue) Committing() LockValue {
	v.Stage = StageCommitting
	return v
}

func (v LockValue) String() string {
	return fmt.Sprintf("%s%s%s%s%s%s%d", v.Stage, lockValueSeparator, v.Rand, lockValueSeparator, v.Thread, lockValueSeparator, v.Timestamp)
}

func ParseLockValue(str string) (LockValue, error) {
	parts := strings.SplitN(str, lockValueSeparator, 4)
	if len(parts) != 4 {
		return LockValue{}, errors.Errorf("error malformed lock value: %q", str)
	}
	stage := LockStage(parts[0])
	if stage != StageDoing && stage != StageCommitting {
		return LockValue{}, errors.Errorf("error malformed lock value stage: %q", parts[0])
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return LockValue{}, errors.Wrapf(err, "error malformed lock value timestamp: %q", parts[3])
	}
	return LockValue{Stage: stage, Rand: parts[1], Thread: parts[2], Timestamp: ts}, nil
}
