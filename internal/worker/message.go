package worker

// Job はワーカーが実行するジョブを表す
type Job func()

// Kind はメッセージの種類
type Kind int

const (
	KindWork Kind = iota
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindWork:
		return "Work"
	case KindStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Message はディスパッチチャネルを流れる制御メッセージ
type Message struct {
	kind Kind
	seq  uint64
	job  Job
}

func workMessage(seq uint64, job Job) Message {
	return Message{kind: KindWork, seq: seq, job: job}
}

func stopMessage() Message {
	return Message{kind: KindStop}
}

// Kind はメッセージの種類を返す
func (m Message) Kind() Kind {
	return m.kind
}

// Seq は投入順の通し番号を返す（Stopは0）
func (m Message) Seq() uint64 {
	return m.seq
}
