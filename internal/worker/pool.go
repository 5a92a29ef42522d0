package worker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"webpool/internal/events"
	"webpool/internal/logger"
	"webpool/internal/metrics"
)

var (
	// ErrInvalidSize はワーカー数が1未満であることを示す
	ErrInvalidSize = errors.New("worker: pool size must be greater than zero")
	// ErrPoolClosed はShutdown開始後のSubmitを示す
	ErrPoolClosed = errors.New("worker: pool is shut down")
	// ErrNilJob はnilジョブのSubmitを示す
	ErrNilJob = errors.New("worker: nil job")
)

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	Size int // ワーカー数（1以上）

	Logger    *logger.Logger     // nilで logger.Default
	Metrics   *metrics.Metrics   // ジョブ統計（任意）
	Collector *metrics.Collector // Prometheus（任意）
	Events    *events.Bus        // ライフサイクルイベント（任意）

	// PanicHandler はジョブのpanicを回復した後に呼ばれる
	PanicHandler func(workerID int, err *PanicError)
	// PropagatePanics がtrueならジョブのpanicを回復せずプロセスを落とす
	PropagatePanics bool
}

// Pool は固定数のワーカーと送信側を所有する
type Pool struct {
	workers []*Worker
	tx      *Sender
	rx      *Receiver
	obs     *observer
	seq     atomic.Uint64

	// closed はSubmitとShutdownの順序を保証する
	mu     sync.RWMutex
	closed bool

	shutdownOnce sync.Once
}

// NewPool は size 個のワーカーを持つプールを作成する
func NewPool(size int) (*Pool, error) {
	return NewPoolWithConfig(PoolConfig{Size: size})
}

// MustNewPool は NewPool と同じだが、失敗時にpanicする
func MustNewPool(size int) *Pool {
	p, err := NewPool(size)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPoolWithConfig は設定を指定してプールを作成する。
// 全ワーカーがRunningになるまで待ってから返る
func NewPoolWithConfig(config PoolConfig) (*Pool, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSize, config.Size)
	}

	obs := newObserver(config)
	tx, rx := NewChannel()
	if obs.collector != nil {
		tx.observeDepth(obs.collector.QueueDepth)
	}
	shared := &sharedReceiver{rx: rx}

	p := &Pool{
		workers: make([]*Worker, 0, config.Size),
		tx:      tx,
		rx:      rx,
		obs:     obs,
	}
	for id := 0; id < config.Size; id++ {
		p.workers = append(p.workers, spawnWorker(id, shared, obs))
	}
	for _, w := range p.workers {
		<-w.ready
	}

	obs.log.Info("", "WorkerPool started with %d workers", config.Size)
	return p, nil
}

// Submit はジョブをキューに投入する。実行完了は待たない
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	seq := p.seq.Add(1)
	if err := p.tx.Send(workMessage(seq, job)); err != nil {
		return fmt.Errorf("worker: submit job %d: %w", seq, err)
	}
	p.obs.jobSubmitted()
	return nil
}

// Shutdown は全ワーカーに停止メッセージを送り、ID順にJoinする。
// 受付済みのジョブはすべて実行される。2回目以降は何もしない。
// ジョブの中から呼んではいけない。そのワーカー自身をJoinして戻らなくなる
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(p.shutdown)
}

// Close は Shutdown を呼ぶ。io.Closer 用
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

func (p *Pool) shutdown() {
	// 以降のSubmitを拒否してから停止メッセージを積む
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.obs.log.Info("", "Sending terminate message to all workers")
	for range p.workers {
		if err := p.tx.Send(stopMessage()); err != nil {
			panic(fmt.Errorf("worker: send stop: %w", err))
		}
	}

	for _, w := range p.workers {
		p.obs.log.Info("", "Shutting down worker %d", w.id)
		w.Join()
	}

	p.tx.Close()
	p.rx.Close()
	p.obs.poolShutdown(len(p.workers))
	p.obs.log.Info("", "WorkerPool stopped")
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// QueueLen はキューで待機中のメッセージ数を返す
func (p *Pool) QueueLen() int {
	return p.tx.Len()
}

// Closed はShutdownが開始されたかを返す
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Workers は各ワーカーのスナップショットをID順に返す
func (p *Pool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		infos = append(infos, w.Info())
	}
	return infos
}

// observer はログ・メトリクス・イベントの出力先をまとめる
type observer struct {
	log             *logger.Logger
	metrics         *metrics.Metrics
	collector       *metrics.Collector
	bus             *events.Bus
	panicHandler    func(int, *PanicError)
	propagatePanics bool
}

func newObserver(config PoolConfig) *observer {
	log := config.Logger
	if log == nil {
		log = logger.Default
	}
	return &observer{
		log:             log,
		metrics:         config.Metrics,
		collector:       config.Collector,
		bus:             config.Events,
		panicHandler:    config.PanicHandler,
		propagatePanics: config.PropagatePanics,
	}
}

func (o *observer) publish(event events.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

func (o *observer) workerStarted(w *Worker) {
	o.collector.WorkerStarted()
	o.publish(events.NewWorkerStartedEvent(w.id, int(w.threadID.Load())))
	o.log.Debug(w.scope(), "Worker %d running on thread %d", w.id, w.threadID.Load())
}

func (o *observer) workerStopped(w *Worker) {
	o.collector.WorkerStopped()
	o.publish(events.NewWorkerStoppedEvent(w.id, w.jobsRun.Load()))
}

func (o *observer) jobSubmitted() {
	o.collector.JobSubmitted()
}

func (o *observer) jobFinished(w *Worker, seq uint64, elapsed time.Duration, err error) {
	var perr *PanicError
	panicked := errors.As(err, &perr)

	o.collector.JobFinished(elapsed, panicked)
	if o.metrics != nil {
		if panicked {
			o.metrics.RecordFailure(elapsed)
		} else {
			o.metrics.RecordSuccess(elapsed)
		}
	}
	if !panicked {
		return
	}

	o.log.Error(w.scope(), "job %d panicked: %v\n%s", seq, perr.Value, perr.Stack)
	o.publish(events.NewJobPanickedEvent(w.id, seq, perr))
	if o.panicHandler != nil {
		o.panicHandler(w.id, perr)
	}
}

func (o *observer) poolShutdown(workers int) {
	o.publish(events.NewPoolShutdownEvent(workers))
}
