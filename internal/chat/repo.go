package chat

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/llmstream/openrouter-bot/internal/ai"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// RegisterUser inserts the user or refreshes the mutable profile fields
// of an existing row.
func (r *Repo) RegisterUser(ctx context.Context, u *User) error {
	var existing User
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", u.ChatID, u.UserID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(u).Error
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&existing).
		Updates(map[string]any{
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"username":   u.Username,
		}).Error
}

func (r *Repo) CreateTurn(ctx context.Context, t *Turn) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// UpdateAnswer fills the answer of an existing turn and marks it
// displayed.
func (r *Repo) UpdateAnswer(ctx context.Context, turnID int64, answer string) error {
	return r.db.WithContext(ctx).Model(&Turn{}).
		Where("id = ?", turnID).
		Updates(map[string]any{
			"answer":    answer,
			"displayed": true,
		}).Error
}

// HideTurn excludes a superseded answer from future context windows.
func (r *Repo) HideTurn(ctx context.Context, turnID int64) error {
	return r.db.WithContext(ctx).Model(&Turn{}).
		Where("id = ?", turnID).
		Update("displayed", false).Error
}

// NextDialogNumber returns max(dialog_number)+1 for the user, starting
// at 1.
func (r *Repo) NextDialogNumber(ctx context.Context, userID int64) (int64, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).Model(&Turn{}).
		Where("user_id = ?", userID).
		Select("MAX(dialog_number)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// DialogHistory expands the dialog's displayed turns, oldest first, into
// alternating user/assistant messages. Turns without an answer yet
// contribute only the question.
func (r *Repo) DialogHistory(ctx context.Context, userID, dialogNumber int64) ([]ai.Message, error) {
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND dialog_number = ? AND displayed = ?", userID, dialogNumber, true).
		Order("id ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	history := make([]ai.Message, 0, 2*len(turns))
	for _, t := range turns {
		if t.Question != "" {
			history = append(history, ai.Message{Role: "user", Content: t.Question})
		}
		if t.Answer != "" {
			history = append(history, ai.Message{Role: "assistant", Content: t.Answer})
		}
	}
	return history, nil
}

// SaveModel upserts one catalog row.
func (r *Repo) SaveModel(ctx context.Context, m *Model) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error
}

func (r *Repo) GetModel(ctx context.Context, id string) (*Model, error) {
	var m Model
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) ListModels(ctx context.Context, onlyFree, onlyTop bool) ([]Model, error) {
	q := r.db.WithContext(ctx).Order("name ASC")
	if onlyFree {
		q = q.Where("is_free = ?", true)
	}
	if onlyTop {
		q = q.Where("top_model = ?", true)
	}
	var models []Model
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// ModelContextLength resolves a model's context budget, preferring the
// model-level length over the provider-level one. Returns 0 when the
// model is unknown.
func (r *Repo) ModelContextLength(ctx context.Context, id string) int {
	m, err := r.GetModel(ctx, id)
	if err != nil {
		return 0
	}
	if m.ContextLength > 0 {
		return m.ContextLength
	}
	return m.ProviderContextLength
}
