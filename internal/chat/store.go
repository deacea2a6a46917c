package chat

import (
	"context"

	"github.com/llmstream/openrouter-bot/internal/stream"
)

// TurnStore adapts the repo to the dispatcher's persistence interface.
type TurnStore struct {
	repo *Repo
}

func NewTurnStore(repo *Repo) *TurnStore {
	return &TurnStore{repo: repo}
}

func (s *TurnStore) SaveAnswer(ctx context.Context, turnID int64, answer string) error {
	return s.repo.UpdateAnswer(ctx, turnID, answer)
}

func (s *TurnStore) CreateAnsweredTurn(ctx context.Context, m stream.Meta, answer string) (int64, error) {
	t := &Turn{
		ChatID:       m.ChatID,
		UserID:       m.UserID,
		DialogNumber: m.DialogNumber,
		ModelName:    m.ModelName,
		ModelID:      m.ModelID,
		Question:     m.Question,
		Answer:       answer,
		Displayed:    true,
	}
	if err := s.repo.CreateTurn(ctx, t); err != nil {
		return 0, err
	}
	return t.ID, nil
}
