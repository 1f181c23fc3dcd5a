package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deckofthoughts/apiserver/types"
	"github.com/google/uuid"
)

// CardRepository handles persistence for cards. It does not filter by owner;
// callers enforce ownership.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

// ListByOwner returns the owner's cards, most recently created first.
func (r *CardRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Card, error) {
	const query = `
		SELECT id, user_id, title, category, content, tags_json, created_at, updated_at
		FROM cards
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]types.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}

func (r *CardRepository) Get(ctx context.Context, id string) (types.Card, error) {
	const query = `
		SELECT id, user_id, title, category, content, tags_json, created_at, updated_at
		FROM cards
		WHERE id = $1`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Card{}, ErrNotFound
		}
		return types.Card{}, err
	}
	return card, nil
}

func (r *CardRepository) Create(ctx context.Context, card types.Card) (types.Card, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}
	now := nowMillis()
	card.CreatedAt = now
	card.UpdatedAt = now

	tagsJSON, err := json.Marshal(card.Tags)
	if err != nil {
		return types.Card{}, err
	}

	const query = `
		INSERT INTO cards (id, user_id, title, category, content, tags_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		card.ID,
		card.UserID,
		card.Title,
		string(card.Category),
		card.Content,
		string(tagsJSON),
		card.CreatedAt,
		card.UpdatedAt,
	); err != nil {
		return types.Card{}, err
	}

	return card, nil
}

// Update applies the supplied patch fields in a single statement. updated_at
// always moves forward, even for two writes within one millisecond.
func (r *CardRepository) Update(ctx context.Context, id string, patch types.CardPatch) (types.Card, error) {
	var title, category, content, tags any
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Category != nil {
		category = string(*patch.Category)
	}
	if patch.Content != nil {
		content = *patch.Content
	}
	if patch.Tags != nil {
		tagsJSON, err := json.Marshal(patch.Tags)
		if err != nil {
			return types.Card{}, err
		}
		tags = string(tagsJSON)
	}

	const query = `
		UPDATE cards
		SET title = COALESCE($1, title),
			category = COALESCE($2, category),
			content = COALESCE($3, content),
			tags_json = COALESCE($4, tags_json),
			updated_at = GREATEST($5, updated_at + 1)
		WHERE id = $6
		RETURNING id, user_id, title, category, content, tags_json, created_at, updated_at`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, title, category, content, tags, nowMillis(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Card{}, ErrNotFound
		}
		return types.Card{}, err
	}
	return card, nil
}

func (r *CardRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM cards WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByCategory returns per-category totals for the owner's cards.
func (r *CardRepository) CountByCategory(ctx context.Context, ownerID string) (types.CardStats, error) {
	const query = `
		SELECT category, COUNT(1)
		FROM cards
		WHERE user_id = $1
		GROUP BY category`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return types.CardStats{}, err
	}
	defer rows.Close()

	var stats types.CardStats
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return types.CardStats{}, err
		}
		stats.Add(types.Category(category), count)
	}
	if err := rows.Err(); err != nil {
		return types.CardStats{}, err
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (types.Card, error) {
	var card types.Card
	var category, tagsJSON string
	if err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.Title,
		&category,
		&card.Content,
		&tagsJSON,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return types.Card{}, err
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return types.Card{}, fmt.Errorf("card %s: %w", card.ID, err)
	}
	card.Category = types.Category(category)
	card.Tags = tags
	return card, nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
