package stream

// Kind tags a stream update. Every kind except Partial is terminal:
// exactly one terminal update is emitted per stream.
type Kind int

const (
	KindPartial Kind = iota
	KindFinal
	KindCancelled
	KindTimedOut
	KindErrored
)

func (k Kind) Terminal() bool { return k != KindPartial }

func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	case KindCancelled:
		return "cancelled"
	case KindTimedOut:
		return "timed_out"
	case KindErrored:
		return "errored"
	}
	return "unknown"
}

// Meta identifies the target message and carries everything the
// dispatcher needs to persist a terminal result without re-querying.
type Meta struct {
	ChatID    int64
	MessageID int

	// persistence context
	TurnID       int64
	IsReload     bool
	UserID       int64
	DialogNumber int64
	ModelID      string
	ModelName    string
	Question     string
}

// Update is one event on the consumer -> dispatcher queue. Text is the
// full accumulated response so far; across Partial updates of one
// stream it only ever grows by appending.
type Update struct {
	Kind Kind
	Meta Meta
	Text string

	// user-facing error line, set for KindErrored
	ErrMsg string

	// token of the producing stream, used to clear the registry entry
	// only if it still belongs to this stream
	token *Token
}
