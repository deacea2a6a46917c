package stream

import (
	"context"
	"errors"
)

// Controls selects the inline control attached to an outbound message:
// a stop control while streaming, a regenerate control once terminal.
type Controls int

const (
	ControlsNone Controls = iota
	ControlsCancel
	ControlsRegenerate
)

var (
	// ErrBadMarkup is reported by a Delivery when the channel rejects
	// the rendered markup. The dispatcher retries once with plain text.
	ErrBadMarkup = errors.New("stream: delivery rejected markup")

	// ErrNotModified is reported when an edit carries no change. It is
	// not a failure.
	ErrNotModified = errors.New("stream: message not modified")
)

// Delivery is the chat-platform collaborator the dispatcher writes to.
type Delivery interface {
	SendMessage(ctx context.Context, chatID int64, text string, controls Controls) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, controls Controls) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	ClearControls(ctx context.Context, chatID int64, messageID int) error
	MaxMessageLen() int
}

// Renderer converts accumulated model output to the delivery channel's
// markup. Strip removes that markup again for the plain-text retry.
type Renderer interface {
	Render(text string) string
	Strip(rendered string) string
}

// Store persists the final answer of a terminal update.
type Store interface {
	// SaveAnswer writes the answer into an existing turn.
	SaveAnswer(ctx context.Context, turnID int64, answer string) error
	// CreateAnsweredTurn records a fresh turn (reload flow) and returns
	// its id.
	CreateAnsweredTurn(ctx context.Context, m Meta, answer string) (int64, error)
}

// Binder rebinds a user's current turn after a reload created a new one.
type Binder interface {
	BindCurrentTurn(userID, turnID int64)
}
