package worker

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// State はワーカーの状態を表す
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// PanicError はジョブ内で発生したpanicを表す
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// Unwrap はpanic値がerrorの場合にそれを返す
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Worker は1つのOSスレッドに固定されたゴルーチン
type Worker struct {
	id       int
	state    atomic.Int32
	threadID atomic.Int64
	jobsRun  atomic.Uint64

	ready  chan struct{}
	exited chan struct{}

	// handle はJoinで一度だけ取り出される
	mu     sync.Mutex
	handle chan struct{}

	obs *observer
}

// WorkerInfo はワーカーの状態のスナップショット
type WorkerInfo struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	ThreadID int    `json:"thread_id"`
	JobsRun  uint64 `json:"jobs_run"`
}

func spawnWorker(id int, rx *sharedReceiver, obs *observer) *Worker {
	w := &Worker{
		id:     id,
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
		obs:    obs,
	}
	w.handle = w.exited

	go w.run(rx)
	return w
}

// ID はワーカーIDを返す
func (w *Worker) ID() int {
	return w.id
}

// State は現在の状態を返す
func (w *Worker) State() State {
	return State(w.state.Load())
}

// JobsRun は実行したジョブ数を返す
func (w *Worker) JobsRun() uint64 {
	return w.jobsRun.Load()
}

// Info はスナップショットを返す
func (w *Worker) Info() WorkerInfo {
	return WorkerInfo{
		ID:       w.id,
		State:    w.State().String(),
		ThreadID: int(w.threadID.Load()),
		JobsRun:  w.jobsRun.Load(),
	}
}

// Join はワーカーの終了を待つ。
// 2回目以降の呼び出しは待たずに false を返す
func (w *Worker) Join() bool {
	w.mu.Lock()
	handle := w.handle
	w.handle = nil
	w.mu.Unlock()

	if handle == nil {
		return false
	}
	<-handle
	return true
}

func (w *Worker) run(rx *sharedReceiver) {
	// Unlockしないので、スレッドはワーカー終了とともに破棄される
	runtime.LockOSThread()
	defer close(w.exited)

	w.threadID.Store(int64(threadID()))
	w.state.Store(int32(StateRunning))
	w.obs.workerStarted(w)
	close(w.ready)

	for {
		msg, err := rx.recv()
		if err != nil {
			w.obs.log.Error(w.scope(), "receive failed: %v", err)
			break
		}

		if msg.kind == KindStop {
			w.state.Store(int32(StateTerminating))
			w.obs.log.Info(w.scope(), "Worker %d was told to terminate", w.id)
			break
		}

		w.obs.log.Debug(w.scope(), "Worker %d got job %d; executing", w.id, msg.seq)
		w.execute(msg)
	}

	w.state.Store(int32(StateTerminated))
	w.obs.workerStopped(w)
}

func (w *Worker) execute(msg Message) {
	start := time.Now()
	err := w.invoke(msg.job)
	w.jobsRun.Add(1)
	w.obs.jobFinished(w, msg.seq, time.Since(start), err)
}

func (w *Worker) invoke(job Job) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if w.obs.propagatePanics {
			panic(r)
		}
		err = &PanicError{Value: r, Stack: debug.Stack()}
	}()

	job()
	return nil
}

func (w *Worker) scope() string {
	return fmt.Sprintf("worker-%d", w.id)
}
