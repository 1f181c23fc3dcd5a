// Package testutil holds in-memory stand-ins for the SQL repositories and
// the optional storage and event backends.
package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/deckofthoughts/apiserver/internal/storage"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/deckofthoughts/apiserver/types"
	"github.com/google/uuid"
)

// UserRepo is a concurrency-safe in-memory user repository.
type UserRepo struct {
	mu     sync.Mutex
	byID   map[string]types.User
	byName map[string]string
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:   make(map[string]types.User),
		byName: make(map[string]string),
	}
}

func (r *UserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *UserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[user.Username]; taken {
		return types.User{}, store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UnixMilli()
	r.byID[user.ID] = user
	r.byName[user.Username] = user.ID
	return user, nil
}

// Count returns the number of stored users.
func (r *UserRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// CardRepo is a concurrency-safe in-memory card repository.
type CardRepo struct {
	mu    sync.Mutex
	cards map[string]storedCard
	seq   int
	clock int64
}

type storedCard struct {
	card types.Card
	seq  int
}

func NewCardRepo() *CardRepo {
	return &CardRepo{cards: make(map[string]storedCard)}
}

// tick returns a strictly increasing epoch-ms timestamp.
func (r *CardRepo) tick() int64 {
	now := time.Now().UnixMilli()
	if now <= r.clock {
		now = r.clock + 1
	}
	r.clock = now
	return now
}

func (r *CardRepo) ListByOwner(_ context.Context, ownerID string) ([]types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned := make([]storedCard, 0)
	for _, sc := range r.cards {
		if sc.card.UserID == ownerID {
			owned = append(owned, sc)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].card.CreatedAt != owned[j].card.CreatedAt {
			return owned[i].card.CreatedAt > owned[j].card.CreatedAt
		}
		return owned[i].seq > owned[j].seq
	})

	cards := make([]types.Card, 0, len(owned))
	for _, sc := range owned {
		cards = append(cards, cloneCard(sc.card))
	}
	return cards, nil
}

func (r *CardRepo) Get(_ context.Context, id string) (types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.cards[id]
	if !ok {
		return types.Card{}, store.ErrNotFound
	}
	return cloneCard(sc.card), nil
}

func (r *CardRepo) Create(_ context.Context, card types.Card) (types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}
	now := r.tick()
	card.CreatedAt = now
	card.UpdatedAt = now
	r.seq++
	r.cards[card.ID] = storedCard{card: cloneCard(card), seq: r.seq}
	return cloneCard(card), nil
}

func (r *CardRepo) Update(_ context.Context, id string, patch types.CardPatch) (types.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.cards[id]
	if !ok {
		return types.Card{}, store.ErrNotFound
	}
	if patch.Title != nil {
		sc.card.Title = *patch.Title
	}
	if patch.Category != nil {
		sc.card.Category = *patch.Category
	}
	if patch.Content != nil {
		sc.card.Content = *patch.Content
	}
	if patch.Tags != nil {
		sc.card.Tags = append([]string{}, patch.Tags...)
	}
	sc.card.UpdatedAt = r.tick()
	r.cards[id] = sc
	return cloneCard(sc.card), nil
}

func (r *CardRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.cards, id)
	return nil
}

func (r *CardRepo) CountByCategory(_ context.Context, ownerID string) (types.CardStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats types.CardStats
	for _, sc := range r.cards {
		if sc.card.UserID == ownerID {
			stats.Add(sc.card.Category, 1)
		}
	}
	return stats, nil
}

func cloneCard(card types.Card) types.Card {
	card.Tags = append([]string{}, card.Tags...)
	return card
}

// Publisher records published card events. Err, when set, is returned from
// every publish after the event has been recorded.
type Publisher struct {
	mu     sync.Mutex
	events []types.CardEvent
	Err    error
}

func (p *Publisher) PublishCardEvent(_ context.Context, event types.CardEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []types.CardEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.CardEvent(nil), p.events...)
}

// Objects is an in-memory object bucket.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewObjects() *Objects {
	return &Objects{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (o *Objects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	o.types[key] = contentType
	return nil
}

func (o *Objects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(o.objects, key)
	delete(o.types, key)
	return nil
}

// ContentType returns the content type the object was stored with.
func (o *Objects) ContentType(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.types[key]
}

// Keys lists stored object keys in lexical order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
