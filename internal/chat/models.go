package chat

import (
	"time"

	"github.com/llmstream/openrouter-bot/internal/ai"
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID       int64     `gorm:"not null;index:uniq_chat_user,unique,priority:1" json:"chat_id"`
	UserID       int64     `gorm:"not null;index:uniq_chat_user,unique,priority:2" json:"user_id"`
	FirstName    string    `gorm:"type:varchar(128)" json:"first_name"`
	LastName     string    `gorm:"type:varchar(128)" json:"last_name"`
	Username     string    `gorm:"type:varchar(128);index" json:"username"`
	IsPremium    bool      `json:"is_premium"`
	RegisteredAt time.Time `gorm:"autoCreateTime" json:"registered_at"`
}

func (User) TableName() string { return "users" }

// Turn is one question/answer pair within a numbered dialog. Superseded
// answers stay in the table with Displayed=false and are excluded when
// the context window is rebuilt.
type Turn struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID       int64     `gorm:"not null;index" json:"chat_id"`
	UserID       int64     `gorm:"not null;index:idx_turn_user_dialog,priority:1" json:"user_id"`
	DialogNumber int64     `gorm:"not null;index:idx_turn_user_dialog,priority:2" json:"dialog_number"`
	ModelName    string    `gorm:"type:varchar(128)" json:"model_name"`
	ModelID      string    `gorm:"type:varchar(128);index" json:"model_id"`
	Question     string    `gorm:"type:text" json:"question"`
	Answer       string    `gorm:"type:text" json:"answer"`
	Displayed    bool      `gorm:"index" json:"displayed"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "dialogs" }

// Model is one OpenRouter catalog row, refreshed by the sync worker.
type Model struct {
	ID                    string    `gorm:"primaryKey;size:128" json:"id"`
	Name                  string    `gorm:"not null" json:"name"`
	Created               int64     `json:"created"`
	Description           string    `gorm:"type:text" json:"description"`
	ContextLength         int       `json:"context_length"`
	Modality              string    `gorm:"type:varchar(64)" json:"modality"`
	Tokenizer             string    `gorm:"type:varchar(64)" json:"tokenizer"`
	InstructType          string    `gorm:"type:varchar(64)" json:"instruct_type"`
	PromptPrice           string    `gorm:"type:varchar(32)" json:"prompt_price"`
	CompletionPrice       string    `gorm:"type:varchar(32)" json:"completion_price"`
	ImagePrice            string    `gorm:"type:varchar(32)" json:"image_price"`
	RequestPrice          string    `gorm:"type:varchar(32)" json:"request_price"`
	ProviderContextLength int       `json:"provider_context_length"`
	IsModerated           bool      `json:"is_moderated"`
	IsFree                bool      `gorm:"index" json:"is_free"`
	TopModel              bool      `gorm:"index" json:"top_model"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (Model) TableName() string { return "models" }

// ModelFromCatalog maps a catalog entry to its persisted row.
func ModelFromCatalog(m ai.ModelInfo) *Model {
	free := m.Pricing.Prompt == "0" && m.Pricing.Completion == "0"
	return &Model{
		ID:                    m.ID,
		Name:                  m.Name,
		Created:               m.Created,
		Description:           m.Description,
		ContextLength:         m.ContextLength,
		Modality:              m.Architecture.Modality,
		Tokenizer:             m.Architecture.Tokenizer,
		InstructType:          m.Architecture.InstructType,
		PromptPrice:           m.Pricing.Prompt,
		CompletionPrice:       m.Pricing.Completion,
		ImagePrice:            m.Pricing.Image,
		RequestPrice:          m.Pricing.Request,
		ProviderContextLength: m.TopProvider.ContextLength,
		IsModerated:           m.TopProvider.IsModerated,
		IsFree:                free,
	}
}
