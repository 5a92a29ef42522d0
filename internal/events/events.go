// Package events provides a pub/sub channel for worker pool lifecycle
// notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted once a worker is running on its thread
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerStopped is emitted after a worker leaves its loop
	EventWorkerStopped EventType = "worker_stopped"
	// EventJobPanicked is emitted when a job panics and the worker recovers it
	EventJobPanicked EventType = "job_panicked"
	// EventPoolShutdown is emitted when every worker of a pool has been joined
	EventPoolShutdown EventType = "pool_shutdown"
)

// Event represents a pool lifecycle event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	ThreadID int    `json:"thread_id,omitempty"`
	JobSeq   uint64 `json:"job_seq,omitempty"`
	JobsRun  uint64 `json:"jobs_run,omitempty"`
	Workers  int    `json:"workers,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(workerID, threadID int) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			ThreadID: threadID,
		},
	}
}

// NewWorkerStoppedEvent creates a worker stopped event
func NewWorkerStoppedEvent(workerID int, jobsRun uint64) Event {
	return Event{
		Type:      EventWorkerStopped,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			JobsRun: jobsRun,
		},
	}
}

// NewJobPanickedEvent creates a job panicked event
func NewJobPanickedEvent(workerID int, seq uint64, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventJobPanicked,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			JobSeq: seq,
			Error:  errMsg,
		},
	}
}

// NewPoolShutdownEvent creates a pool shutdown event.
// WorkerID is -1 because the event concerns the whole pool.
func NewPoolShutdownEvent(workers int) Event {
	return Event{
		Type:      EventPoolShutdown,
		Timestamp: time.Now(),
		WorkerID:  -1,
		Data: EventData{
			Workers: workers,
		},
	}
}
