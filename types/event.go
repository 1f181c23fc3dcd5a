package types

// CardEventType names a card lifecycle transition.
type CardEventType string

const (
	CardCreated CardEventType = "card.created"
	CardUpdated CardEventType = "card.updated"
	CardDeleted CardEventType = "card.deleted"
)

// CardEvent is published after a card mutation has been persisted.
type CardEvent struct {
	Type       CardEventType `json:"type"`
	CardID     string        `json:"cardId"`
	UserID     string        `json:"userId"`
	OccurredAt int64         `json:"occurredAt"`
}

// CardExport is the document written by a deck export.
type CardExport struct {
	ExportedAt int64  `json:"exportedAt"`
	Username   string `json:"username"`
	Cards      []Card `json:"cards"`
}
