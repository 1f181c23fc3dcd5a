package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/types"
)

// CardRepository defines persistence operations for cards.
type CardRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]types.Card, error)
	Get(ctx context.Context, id string) (types.Card, error)
	Create(ctx context.Context, card types.Card) (types.Card, error)
	Update(ctx context.Context, id string, patch types.CardPatch) (types.Card, error)
	Delete(ctx context.Context, id string) error
	CountByCategory(ctx context.Context, ownerID string) (types.CardStats, error)
}

// EventPublisher delivers card lifecycle events.
type EventPublisher interface {
	PublishCardEvent(ctx context.Context, event types.CardEvent) error
}

// CardService encapsulates owner-scoped card use-cases.
type CardService struct {
	repo   CardRepository
	events EventPublisher
	log    *logger.Logger
}

// NewCardService constructs a CardService. events may be nil.
func NewCardService(repo CardRepository, events EventPublisher, log *logger.Logger) *CardService {
	if log == nil {
		log = logger.Nop()
	}
	return &CardService{
		repo:   repo,
		events: events,
		log:    log,
	}
}

func (s *CardService) List(ctx context.Context, caller types.Identity) ([]types.Card, error) {
	return s.repo.ListByOwner(ctx, caller.ID)
}

func (s *CardService) Stats(ctx context.Context, caller types.Identity) (types.CardStats, error) {
	return s.repo.CountByCategory(ctx, caller.ID)
}

// Get loads a card the caller owns. A missing card yields store.ErrNotFound
// before ownership is considered.
func (s *CardService) Get(ctx context.Context, caller types.Identity, id string) (types.Card, error) {
	card, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Card{}, err
	}
	if card.UserID != caller.ID {
		return types.Card{}, ErrForbidden
	}
	return card, nil
}

func (s *CardService) Create(ctx context.Context, caller types.Identity, card types.Card) (types.Card, error) {
	if err := ValidateCategory(card.Category); err != nil {
		return types.Card{}, err
	}
	if err := validateCardText(card.Title, card.Content); err != nil {
		return types.Card{}, err
	}

	card.ID = ""
	card.UserID = caller.ID
	created, err := s.repo.Create(ctx, card)
	if err != nil {
		return types.Card{}, fmt.Errorf("create card: %w", err)
	}

	s.publish(ctx, types.CardCreated, created)
	return created, nil
}

// Update loads the card and checks ownership before validating the patch.
func (s *CardService) Update(ctx context.Context, caller types.Identity, id string, patch types.CardPatch) (types.Card, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return types.Card{}, err
	}

	if patch.Category != nil {
		if err := ValidateCategory(*patch.Category); err != nil {
			return types.Card{}, err
		}
	}
	if err := validateCardText(deref(patch.Title), deref(patch.Content)); err != nil {
		return types.Card{}, err
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.Card{}, err
	}

	s.publish(ctx, types.CardUpdated, updated)
	return updated, nil
}

func (s *CardService) Delete(ctx context.Context, caller types.Identity, id string) error {
	card, err := s.Get(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, types.CardDeleted, card)
	return nil
}

// ValidateCategory rejects values outside the fixed category set.
func ValidateCategory(category types.Category) error {
	if category == "" {
		return invalid("category", "category is required")
	}
	if !category.Valid() {
		names := make([]string, 0, len(types.Categories))
		for _, c := range types.Categories {
			names = append(names, string(c))
		}
		return invalid("category", "category must be one of %s", strings.Join(names, ", "))
	}
	return nil
}

// validateText rejects NUL bytes, which Postgres TEXT columns cannot hold.
func validateText(field, value string) error {
	if strings.IndexByte(value, 0) >= 0 {
		return invalid(field, "%s must not contain NUL characters", field)
	}
	return nil
}

func validateCardText(title, content string) error {
	if err := validateText("title", title); err != nil {
		return err
	}
	return validateText("content", content)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// publish runs after the mutation is committed; a delivery failure is
// logged and does not fail the request.
func (s *CardService) publish(ctx context.Context, eventType types.CardEventType, card types.Card) {
	if s.events == nil {
		return
	}
	event := types.CardEvent{
		Type:       eventType,
		CardID:     card.ID,
		UserID:     card.UserID,
		OccurredAt: time.Now().UnixMilli(),
	}
	if err := s.events.PublishCardEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish card event",
			"type", string(eventType),
			"card_id", card.ID,
			"error", err.Error())
	}
}
