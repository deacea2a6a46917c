package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
)

const dispatcherQueueSize = 256

const (
	noteCancelled  = "\n\n[Generation stopped by user]"
	noteTimedOut   = "\n\n[Generation stopped: response deadline exceeded]"
	noteFormatting = "\n\n[Note: formatting removed due to markup errors]"
)

// Dispatcher is the single consumer of the update queue fed by all
// active stream consumers. It renders accumulated text, deduplicates
// identical edits, delivers them to the chat collaborator and persists
// terminal results.
type Dispatcher struct {
	updates  chan Update
	delivery Delivery
	renderer Renderer
	store    Store
	binder   Binder
	registry *Registry

	// message identifier -> last delivered text; entries die with the
	// terminal update. Only the Run goroutine touches this map.
	last map[string]string
}

func NewDispatcher(delivery Delivery, renderer Renderer, store Store, binder Binder, registry *Registry) *Dispatcher {
	return &Dispatcher{
		updates:  make(chan Update, dispatcherQueueSize),
		delivery: delivery,
		renderer: renderer,
		store:    store,
		binder:   binder,
		registry: registry,
		last:     make(map[string]string),
	}
}

// Updates is the producer side of the queue.
func (d *Dispatcher) Updates() chan<- Update { return d.updates }

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-d.updates:
			d.handle(ctx, u)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, u Update) {
	key := fmt.Sprintf("%d:%d", u.Meta.ChatID, u.Meta.MessageID)
	rendered := d.renderText(u)
	terminal := u.Kind.Terminal()

	if !terminal && d.last[key] == rendered {
		// nothing new to show
		return
	}

	controls := ControlsCancel
	if terminal {
		controls = ControlsRegenerate
	}

	limit := d.delivery.MaxMessageLen()
	if runes := []rune(rendered); len(runes) > limit {
		if terminal {
			d.deliverChunked(ctx, u, rendered, controls)
		} else {
			// partial chunks would flood the chat; show a truncated view
			d.deliverEdit(ctx, u, key, string(runes[:limit-3])+"...", controls)
		}
	} else {
		d.deliverEdit(ctx, u, key, rendered, controls)
	}

	if terminal {
		d.persist(ctx, u)
		delete(d.last, key)
		d.registry.Clear(u.Meta.ChatID, u.token)
	}
}

func (d *Dispatcher) renderText(u Update) string {
	switch u.Kind {
	case KindCancelled:
		return d.renderer.Render(u.Text) + noteCancelled
	case KindTimedOut:
		return d.renderer.Render(u.Text) + noteTimedOut
	case KindErrored:
		if u.Text == "" {
			return "Request to the model failed: " + u.ErrMsg
		}
		return d.renderer.Render(u.Text) + "\n\n[Generation failed: " + u.ErrMsg + "]"
	}
	return d.renderer.Render(u.Text)
}

// deliverEdit edits the target message in place, retrying once with
// stripped markup when the channel rejects the formatting. The dedup
// entry is only advanced after a delivered (or unchanged) edit.
func (d *Dispatcher) deliverEdit(ctx context.Context, u Update, key, text string, controls Controls) {
	err := d.delivery.EditMessage(ctx, u.Meta.ChatID, u.Meta.MessageID, text, controls)
	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		d.last[key] = text
	case errors.Is(err, ErrBadMarkup):
		plain := d.renderer.Strip(text) + noteFormatting
		if err := d.delivery.EditMessage(ctx, u.Meta.ChatID, u.Meta.MessageID, plain, controls); err != nil {
			log.Printf("dispatcher: plain-text retry failed chat_id=%d message_id=%d err=%v", u.Meta.ChatID, u.Meta.MessageID, err)
			return
		}
		d.last[key] = plain
	default:
		log.Printf("dispatcher: edit failed chat_id=%d message_id=%d err=%v", u.Meta.ChatID, u.Meta.MessageID, err)
	}
}

// deliverChunked replaces the in-progress message with ordered part
// messages; the terminal controls go on the last part only.
func (d *Dispatcher) deliverChunked(ctx context.Context, u Update, text string, controls Controls) {
	limit := d.delivery.MaxMessageLen()
	runes := []rune(text)

	var parts []string
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}

	if err := d.delivery.DeleteMessage(ctx, u.Meta.ChatID, u.Meta.MessageID); err != nil {
		log.Printf("dispatcher: delete failed chat_id=%d message_id=%d err=%v", u.Meta.ChatID, u.Meta.MessageID, err)
	}

	for i, part := range parts {
		ctrl := ControlsNone
		if i == len(parts)-1 {
			ctrl = controls
		}
		label := fmt.Sprintf("Part %d/%d:\n\n%s", i+1, len(parts), part)
		_, err := d.delivery.SendMessage(ctx, u.Meta.ChatID, label, ctrl)
		if errors.Is(err, ErrBadMarkup) {
			plain := fmt.Sprintf("Part %d/%d:\n\n%s%s", i+1, len(parts), d.renderer.Strip(part), noteFormatting)
			_, err = d.delivery.SendMessage(ctx, u.Meta.ChatID, plain, ctrl)
		}
		if err != nil {
			log.Printf("dispatcher: send part %d/%d failed chat_id=%d err=%v", i+1, len(parts), u.Meta.ChatID, err)
		}
	}
}

// persist writes the terminal answer. Failures are logged only: the
// outbound edit already happened and the stream is terminal regardless.
func (d *Dispatcher) persist(ctx context.Context, u Update) {
	if d.store == nil || u.Meta.TurnID == 0 {
		return
	}
	if u.Meta.IsReload {
		id, err := d.store.CreateAnsweredTurn(ctx, u.Meta, u.Text)
		if err != nil {
			log.Printf("dispatcher: create turn failed chat_id=%d err=%v", u.Meta.ChatID, err)
			return
		}
		if d.binder != nil {
			d.binder.BindCurrentTurn(u.Meta.UserID, id)
		}
		return
	}
	if err := d.store.SaveAnswer(ctx, u.Meta.TurnID, u.Text); err != nil {
		log.Printf("dispatcher: save answer failed turn_id=%d err=%v", u.Meta.TurnID, err)
	}
}
