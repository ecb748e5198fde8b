package character

import (
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

// CompletionState tracks quest progress.
type CompletionState string

const (
	QuestNotStarted CompletionState = "not_started"
	QuestInProgress CompletionState = "in_progress"
	QuestCompleted  CompletionState = "completed"
)

func (s CompletionState) Valid() bool {
	switch s {
	case QuestNotStarted, QuestInProgress, QuestCompleted:
		return true
	}
	return false
}

// QuestRewards describes what clearing a quest grants. Currency amounts and
// experience must be non-negative.
type QuestRewards struct {
	Items      []string       `json:"items,omitempty"`
	Currency   map[string]int `json:"currency,omitempty"`
	Experience *int           `json:"experience,omitempty"`
}

// Quest is the single active quest slot. Quests have no identity of their
// own; they are replaced wholesale, never field-patched.
type Quest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Requirements    []string        `json:"requirements,omitempty"`
	Rewards         QuestRewards    `json:"rewards"`
	CompletionState CompletionState `json:"completion_state"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks all quest fields, including reward constraints.
func (q *Quest) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return apperr.Invalid("quest.name", "must not be empty")
	}
	if strings.TrimSpace(q.Description) == "" {
		return apperr.Invalid("quest.description", "must not be empty")
	}
	if !q.CompletionState.Valid() {
		return apperr.Invalid("quest.completion_state",
			"must be one of not_started, in_progress, completed (got %q)", string(q.CompletionState))
	}
	for name, amount := range q.Rewards.Currency {
		if strings.TrimSpace(name) == "" {
			return apperr.Invalid("quest.rewards.currency", "currency names must not be empty")
		}
		if amount < 0 {
			return apperr.Invalid("quest.rewards.currency."+name, "must be non-negative (got %d)", amount)
		}
	}
	if q.Rewards.Experience != nil && *q.Rewards.Experience < 0 {
		return apperr.Invalid("quest.rewards.experience", "must be non-negative (got %d)", *q.Rewards.Experience)
	}
	return nil
}

// ArchivedQuest is a cleared quest retained in the bounded FIFO history.
type ArchivedQuest struct {
	Quest     Quest     `json:"quest"`
	ClearedAt time.Time `json:"cleared_at"`
}
