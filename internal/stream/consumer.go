package stream

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/llmstream/openrouter-bot/internal/ai"
)

const (
	// DefaultUpdateInterval rate-limits Partial emissions regardless of
	// how fast the provider streams.
	DefaultUpdateInterval = 1500 * time.Millisecond

	// DefaultStreamTimeout bounds one generation from connection start.
	DefaultStreamTimeout = 300 * time.Second
)

// Consumer drives a single in-flight generation: it reads provider
// chunks, accumulates the response and emits rate-limited Partial
// updates followed by exactly one terminal update.
type Consumer struct {
	provider ai.StreamProvider
	updates  chan<- Update
	token    *Token
	meta     Meta
	messages []ai.Message
	interval time.Duration
	timeout  time.Duration
}

func NewConsumer(provider ai.StreamProvider, updates chan<- Update, token *Token, meta Meta, messages []ai.Message, interval, timeout time.Duration) *Consumer {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	return &Consumer{
		provider: provider,
		updates:  updates,
		token:    token,
		meta:     meta,
		messages: messages,
		interval: interval,
		timeout:  timeout,
	}
}

// Handle is a cancellable, awaitable reference to one running stream.
type Handle struct {
	token *Token
	done  chan struct{}
}

func (h *Handle) Cancel() { h.token.Signal() }

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the consumer on its own goroutine so the caller never
// blocks on network I/O.
func (c *Consumer) Start(ctx context.Context) *Handle {
	h := &Handle{token: c.token, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		c.Run(ctx)
	}()
	return h
}

// Run blocks until the stream reaches a terminal state. Cancelling ctx
// or signalling the token closes the provider connection.
func (c *Consumer) Run(ctx context.Context) {
	if c.token.Signalled() {
		c.emit(KindCancelled, "", "")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // closes the provider connection on every exit path

	chunks, errs := c.provider.StreamChat(ctx, c.meta.ModelID, c.messages)

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	var (
		full     strings.Builder
		lastEmit = time.Now()
		lastText string
	)

	for {
		// cancellation wins over a ready chunk
		select {
		case <-c.token.Done():
			c.emit(KindCancelled, full.String(), "")
			return
		default:
		}

		select {
		case <-c.token.Done():
			c.emit(KindCancelled, full.String(), "")
			return

		case <-deadline.C:
			log.Printf("stream: deadline exceeded chat_id=%d timeout=%s", c.meta.ChatID, c.timeout)
			c.emit(KindTimedOut, full.String(), "")
			return

		case err, ok := <-errs:
			if !ok || err == nil {
				// error channel closed with nothing to report; keep
				// draining chunks
				errs = nil
				continue
			}
			log.Printf("stream: provider error chat_id=%d err=%v", c.meta.ChatID, err)
			c.emit(KindErrored, full.String(), err.Error())
			return

		case chunk, ok := <-chunks:
			if !ok {
				// stream exhausted; a buffered provider error still wins
				if errs != nil {
					select {
					case err, eok := <-errs:
						if eok && err != nil {
							log.Printf("stream: provider error chat_id=%d err=%v", c.meta.ChatID, err)
							c.emit(KindErrored, full.String(), err.Error())
							return
						}
					default:
					}
				}
				c.emit(KindFinal, full.String(), "")
				return
			}
			full.WriteString(chunk)
			if time.Since(lastEmit) >= c.interval {
				if text := full.String(); text != lastText {
					c.emit(KindPartial, text, "")
					lastText = text
					lastEmit = time.Now()
				}
			}
		}
	}
}

func (c *Consumer) emit(kind Kind, text, errMsg string) {
	c.updates <- Update{
		Kind:   kind,
		Meta:   c.meta,
		Text:   text,
		ErrMsg: errMsg,
		token:  c.token,
	}
}
