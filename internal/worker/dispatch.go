package worker

import (
	"errors"
	"sync"
)

// ErrDisconnected は相手側の端が閉じられたチャネルを操作したことを示す
var ErrDisconnected = errors.New("worker: dispatch channel disconnected")

// queue は送信側と受信側で共有される無制限FIFO
type queue struct {
	mu             sync.Mutex
	notEmpty       *sync.Cond
	items          []Message
	senderClosed   bool
	receiverClosed bool

	// onDepth はキュー長が変わるたびにロック内で呼ばれる
	onDepth func(depth int)
}

func (q *queue) depthChanged() {
	if q.onDepth != nil {
		q.onDepth(len(q.items))
	}
}

// Sender はチャネルの送信側。複数ゴルーチンから同時に使える
type Sender struct {
	q *queue
}

// Receiver はチャネルの受信側
type Receiver struct {
	q *queue
}

// NewChannel は送信側と受信側が対になったディスパッチチャネルを作成する
func NewChannel() (*Sender, *Receiver) {
	q := &queue{}
	q.notEmpty = sync.NewCond(&q.mu)
	return &Sender{q: q}, &Receiver{q: q}
}

// Send はメッセージを末尾に追加する。ブロックしない
func (s *Sender) Send(msg Message) error {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.receiverClosed {
		return ErrDisconnected
	}
	q.items = append(q.items, msg)
	q.depthChanged()
	q.notEmpty.Signal()
	return nil
}

// Len はキューに残っているメッセージ数を返す
func (s *Sender) Len() int {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return len(s.q.items)
}

// observeDepth はキュー長の変化を fn に通知する。
// fn はキューのロック内で呼ばれるため、通知順はキュー操作の順と一致する
func (s *Sender) observeDepth(fn func(depth int)) {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	s.q.onDepth = fn
}

// Close は送信側を閉じる。待機中の受信者は残りを受け取った後 ErrDisconnected を返す
func (s *Sender) Close() {
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()

	q.senderClosed = true
	q.notEmpty.Broadcast()
}

// Recv は先頭のメッセージを取り出す。キューが空ならブロックする
func (r *Receiver) Recv() (Message, error) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.senderClosed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return Message{}, ErrDisconnected
	}

	msg := q.items[0]
	// ジョブへの参照を残さない
	q.items[0] = Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	q.depthChanged()
	return msg, nil
}

// Close は受信側を閉じ、未受信のメッセージを破棄する
func (r *Receiver) Close() {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receiverClosed = true
	q.items = nil
	q.depthChanged()
}

// sharedReceiver は全ワーカーが共有する受信側。
// ロックは1回のRecvの間だけ保持する
type sharedReceiver struct {
	mu sync.Mutex
	rx *Receiver
}

func (s *sharedReceiver) recv() (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Recv()
}
