package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/llmstream/openrouter-bot/internal/ai"
	"github.com/llmstream/openrouter-bot/internal/stream"
)

const generatingPlaceholder = "Generating response..."

// cancelGraceDelay bounds how long a "stop" control may dangle after a
// cancel request before it is stripped from the message.
const cancelGraceDelay = 1500 * time.Millisecond

var ErrNoLastQuestion = errors.New("chat: nothing to regenerate")

// Service orchestrates one generation end to end: context assembly,
// placeholder delivery, turn logging, registry bookkeeping and consumer
// spawn. The dispatcher finishes the other half on terminal updates.
type Service struct {
	repo       *Repo
	provider   ai.StreamProvider
	delivery   stream.Delivery
	dispatcher *stream.Dispatcher
	registry   *stream.Registry
	sessions   *Sessions

	interval     time.Duration
	timeout      time.Duration
	contextLimit int // 0 = resolve per model
}

func NewService(repo *Repo, provider ai.StreamProvider, delivery stream.Delivery, dispatcher *stream.Dispatcher, registry *stream.Registry, sessions *Sessions, interval, timeout time.Duration, contextLimit int) *Service {
	return &Service{
		repo:         repo,
		provider:     provider,
		delivery:     delivery,
		dispatcher:   dispatcher,
		registry:     registry,
		sessions:     sessions,
		interval:     interval,
		timeout:      timeout,
		contextLimit: contextLimit,
	}
}

func (s *Service) Sessions() *Sessions { return s.sessions }

type GenerateResult struct {
	Handle       *stream.Handle
	MessageID    int
	TurnID       int64
	ContextUsage float64
}

// Generate starts one streaming generation and returns without waiting
// for it. The stream runs on its own goroutine and reports through the
// dispatcher; the returned handle can cancel and await it.
func (s *Service) Generate(ctx context.Context, userID, chatID int64, modelID, text string, isReload bool) (*GenerateResult, error) {
	dialogNumber, ok := s.sessions.DialogNumber(userID)
	if !ok {
		n, err := s.repo.NextDialogNumber(ctx, userID)
		if err != nil {
			return nil, err
		}
		dialogNumber = n
		s.sessions.SetDialogNumber(userID, n)
	}

	messages, usage, err := s.BuildContext(ctx, userID, dialogNumber, modelID, text, s.contextLimit)
	if err != nil {
		// degrade to a context of just the current question
		log.Printf("chat: history read failed user_id=%d dialog=%d err=%v", userID, dialogNumber, err)
		messages = []ai.Message{{Role: "user", Content: text}}
		usage = 0
	}

	modelName := modelID
	if m, err := s.repo.GetModel(ctx, modelID); err == nil {
		modelName = m.Name
	}

	messageID, err := s.delivery.SendMessage(ctx, chatID, generatingPlaceholder, stream.ControlsCancel)
	if err != nil {
		return nil, err
	}

	meta := stream.Meta{
		ChatID:       chatID,
		MessageID:    messageID,
		IsReload:     isReload,
		UserID:       userID,
		DialogNumber: dialogNumber,
		ModelID:      modelID,
		ModelName:    modelName,
		Question:     text,
	}

	if isReload {
		// the terminal update records a fresh turn; the previous one
		// gates persistence the same way the original answer did
		meta.TurnID = s.sessions.CurrentTurn(userID)
	} else {
		turn := &Turn{
			ChatID:       chatID,
			UserID:       userID,
			DialogNumber: dialogNumber,
			ModelName:    modelName,
			ModelID:      modelID,
			Question:     text,
			Displayed:    true,
		}
		if err := s.repo.CreateTurn(ctx, turn); err != nil {
			log.Printf("chat: turn logging failed user_id=%d err=%v", userID, err)
		} else {
			meta.TurnID = turn.ID
			s.sessions.BindCurrentTurn(userID, turn.ID)
		}
	}

	s.sessions.SetLastQuestion(userID, text, modelID)

	token := s.registry.Start(chatID)
	consumer := stream.NewConsumer(s.provider, s.dispatcher.Updates(), token, meta, messages, s.interval, s.timeout)

	// detached from the request context: the stream outlives the call
	handle := consumer.Start(context.Background())

	return &GenerateResult{
		Handle:       handle,
		MessageID:    messageID,
		TurnID:       meta.TurnID,
		ContextUsage: usage,
	}, nil
}

// Regenerate reruns the user's last question with the reload flag set,
// so the dispatcher records the new answer as a fresh turn.
func (s *Service) Regenerate(ctx context.Context, userID, chatID int64) (*GenerateResult, error) {
	question, modelID, ok := s.sessions.LastQuestion(userID)
	if !ok {
		return nil, ErrNoLastQuestion
	}
	return s.Generate(ctx, userID, chatID, modelID, question, true)
}

// Cancel signals the chat's active stream. Returns false when nothing
// is streaming. If the stream has not reached a terminal state within
// the grace window, the dangling stop control is stripped.
func (s *Service) Cancel(ctx context.Context, chatID int64, messageID int) bool {
	if !s.registry.Signal(chatID) {
		return false
	}
	go func() {
		time.Sleep(cancelGraceDelay)
		if s.registry.IsActive(chatID) {
			if err := s.delivery.ClearControls(context.Background(), chatID, messageID); err != nil {
				log.Printf("chat: clearing controls failed chat_id=%d message_id=%d err=%v", chatID, messageID, err)
			}
		}
	}()
	return true
}

// NewDialog rotates the user to a fresh dialog number; earlier history
// no longer feeds the context window.
func (s *Service) NewDialog(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.NextDialogNumber(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.sessions.SetDialogNumber(userID, n)
	return n, nil
}

func (s *Service) RegisterUser(ctx context.Context, u *User) error {
	return s.repo.RegisterUser(ctx, u)
}

func (s *Service) IsStreaming(chatID int64) bool {
	return s.registry.IsActive(chatID)
}
