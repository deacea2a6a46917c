package ai

import "context"

// Message is one conversation turn sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamProvider streams assistant content chunks for a built context window.
type StreamProvider interface {
	StreamChat(ctx context.Context, model string, messages []Message) (<-chan string, <-chan error)
}
