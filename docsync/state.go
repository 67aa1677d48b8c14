package docsync

import (
	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

// Event is something that happens to a document's sync lifecycle: a user
// trigger, an update side effect, or a worker callback.
type Event string

const (
	EventTriggerSync           Event = "trigger-sync"     // manual sync / sync-on-create
	EventTriggerUnsync         Event = "trigger-unsync"   // manual unsync
	EventValidityRevoked       Event = "validity-revoked" // update sets validityStatus=false
	EventContentReplaced       Event = "content-replaced" // update swaps the storage key
	EventMetadataChanged       Event = "metadata-changed" // update touches indexed fields, key unchanged
	EventDelete                Event = "delete"
	EventSyncSucceeded         Event = "sync-succeeded"
	EventSyncFailed            Event = "sync-failed"
	EventResyncSucceeded       Event = "resync-succeeded"
	EventResyncFailed          Event = "resync-failed"
	EventWatchdogExpired       Event = "watchdog-expired"
	EventResyncWatchdogExpired Event = "resync-watchdog-expired"
)

// Snapshot is the part of a document the machine decides on.
type Snapshot struct {
	Status models.SyncStatus
	Locked bool
	Valid  bool
}

// Transition is the decided outcome. Callers apply it atomically with the
// rest of their DB work.
type Transition struct {
	Next       models.SyncStatus
	SetLock    bool
	ClearLock  bool
	ClearIndex bool
	StoreIndex bool   // persist the identifier returned by the gateway
	EnqueueJob string // job name to enqueue, "" for none
	CallUnsync bool   // best-effort external unsync
	NoChange   bool   // event is a no-op in this state
}

type rule struct {
	event Event
	from  []models.SyncStatus // nil matches any state
	guard func(Snapshot) error
	out   Transition
}

func guardUnlockedValid(s Snapshot) error {
	if s.Locked {
		return utils.ConflictError("IN_PROGRESS_DOCUMENT")
	}
	if !s.Valid {
		return utils.ForbiddenError("INVALID_DOCUMENT")
	}
	return nil
}

func guardUnlocked(s Snapshot) error {
	if s.Locked {
		return utils.ConflictError("IN_PROGRESS_DOCUMENT")
	}
	return nil
}

// transition table per lifecycle design; order matters only within one event.
var rules = []rule{
	{
		event: EventTriggerSync,
		from:  []models.SyncStatus{models.SyncStatusNotSync, models.SyncStatusFailedSync},
		guard: guardUnlockedValid,
		out:   Transition{Next: models.SyncStatusPendingSync, SetLock: true, EnqueueJob: models.JobSyncDocument},
	},
	{
		event: EventTriggerSync,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlockedValid,
		out:   Transition{Next: models.SyncStatusPendingSync, SetLock: true, EnqueueJob: models.JobResyncDocument},
	},
	{
		event: EventTriggerUnsync,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlocked,
		out:   Transition{Next: models.SyncStatusNotSync, ClearIndex: true, EnqueueJob: models.JobUnsyncDocument},
	},
	{
		event: EventValidityRevoked,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlocked,
		out:   Transition{Next: models.SyncStatusNotSync, ClearIndex: true, ClearLock: true, EnqueueJob: models.JobUnsyncDocument},
	},
	{
		event: EventValidityRevoked,
		from:  []models.SyncStatus{models.SyncStatusNotSync, models.SyncStatusFailedSync},
		guard: guardUnlocked,
		out:   Transition{NoChange: true},
	},
	{
		event: EventContentReplaced,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlockedValid,
		out:   Transition{Next: models.SyncStatusPendingSync, SetLock: true, EnqueueJob: models.JobRemoveResyncDocument},
	},
	{
		event: EventContentReplaced,
		from:  []models.SyncStatus{models.SyncStatusNotSync, models.SyncStatusFailedSync},
		guard: guardUnlocked,
		out:   Transition{NoChange: true},
	},
	{
		event: EventMetadataChanged,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlockedValid,
		out:   Transition{Next: models.SyncStatusPendingSync, SetLock: true, EnqueueJob: models.JobResyncDocument},
	},
	{
		event: EventMetadataChanged,
		from:  []models.SyncStatus{models.SyncStatusNotSync, models.SyncStatusFailedSync},
		guard: guardUnlocked,
		out:   Transition{NoChange: true},
	},
	{
		event: EventDelete,
		from:  []models.SyncStatus{models.SyncStatusSync, models.SyncStatusFailedResync},
		guard: guardUnlocked,
		out:   Transition{Next: models.SyncStatusNotSync, ClearIndex: true, CallUnsync: true},
	},
	{
		event: EventDelete,
		guard: guardUnlocked,
		out:   Transition{NoChange: true},
	},
	{
		event: EventSyncSucceeded,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusSync, StoreIndex: true, ClearLock: true},
	},
	{
		event: EventSyncFailed,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusFailedSync, ClearIndex: true, ClearLock: true},
	},
	{
		event: EventResyncSucceeded,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusSync, StoreIndex: true, ClearLock: true},
	},
	{
		event: EventResyncFailed,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusFailedResync, ClearLock: true},
	},
	{
		event: EventWatchdogExpired,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusFailedSync, ClearIndex: true, ClearLock: true},
	},
	{
		event: EventResyncWatchdogExpired,
		from:  []models.SyncStatus{models.SyncStatusPendingSync},
		out:   Transition{Next: models.SyncStatusFailedResync, ClearLock: true},
	},
}

// Decide resolves an event against the current snapshot. Worker callbacks
// arriving after the document moved on resolve to a no-op instead of an
// error, so a late or duplicate callback can never clobber a newer state.
func Decide(ev Event, s Snapshot) (Transition, error) {
	for _, r := range rules {
		if r.event != ev {
			continue
		}
		if r.from != nil && !containsStatus(r.from, s.Status) {
			continue
		}
		if r.guard != nil {
			if err := r.guard(s); err != nil {
				return Transition{}, err
			}
		}
		return r.out, nil
	}

	switch ev {
	case EventSyncSucceeded, EventSyncFailed, EventResyncSucceeded, EventResyncFailed,
		EventWatchdogExpired, EventResyncWatchdogExpired:
		return Transition{NoChange: true}, nil
	}
	// A trigger or update that matched no rule on a locked document (a
	// PENDING_SYNC document in flight) is a lock conflict, not a bad request.
	if s.Locked {
		return Transition{}, utils.ConflictError("IN_PROGRESS_DOCUMENT")
	}
	return Transition{}, utils.BadRequestError("INVALID_SYNC_STATE")
}

func containsStatus(list []models.SyncStatus, s models.SyncStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
