package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/deckofthoughts/apiserver/internal/testutil"
	"github.com/deckofthoughts/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.Identity{ID: "user-alice", Username: "alice"}
	bob   = types.Identity{ID: "user-bob", Username: "bob"}
)

func ptr[T any](v T) *T { return &v }

func newCardService(t *testing.T) (*CardService, *testutil.CardRepo, *testutil.Publisher) {
	t.Helper()
	repo := testutil.NewCardRepo()
	events := &testutil.Publisher{}
	return NewCardService(repo, events, logger.Nop()), repo, events
}

func TestCardService_Create(t *testing.T) {
	svc, _, events := newCardService(t)

	card, err := svc.Create(context.Background(), alice, types.Card{
		ID:       "client-chosen",
		UserID:   bob.ID,
		Title:    "Grocery",
		Category: types.CategoryNote,
		Content:  "milk",
		Tags:     []string{"home", "home"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, "client-chosen", card.ID)
	assert.Equal(t, alice.ID, card.UserID)
	assert.Equal(t, []string{"home", "home"}, card.Tags)
	assert.Equal(t, card.CreatedAt, card.UpdatedAt)

	published := events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, types.CardCreated, published[0].Type)
	assert.Equal(t, card.ID, published[0].CardID)
	assert.Equal(t, alice.ID, published[0].UserID)
}

func TestCardService_Create_InvalidCategory(t *testing.T) {
	svc, repo, events := newCardService(t)

	for _, category := range []types.Category{"", "poem", "Story"} {
		_, err := svc.Create(context.Background(), alice, types.Card{Category: category})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "category %q", category)
		assert.Equal(t, "category", verr.Field)
	}

	cards, err := repo.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Empty(t, events.Events())
}

func TestCardService_List_OwnerScopedNewestFirst(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, alice, types.Card{Title: "first", Category: types.CategoryStory})
	require.NoError(t, err)
	second, err := svc.Create(ctx, alice, types.Card{Title: "second", Category: types.CategoryPrompt})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, types.Card{Title: "bob's", Category: types.CategoryText})
	require.NoError(t, err)

	cards, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, second.ID, cards[0].ID)
	assert.Equal(t, first.ID, cards[1].ID)

	empty, err := svc.List(ctx, types.Identity{ID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCardService_Get(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Category: types.CategoryNote})
	require.NoError(t, err)

	got, err := svc.Get(ctx, alice, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card, got)

	_, err = svc.Get(ctx, bob, card.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, alice, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCardService_Update_PartialFields(t *testing.T) {
	svc, _, events := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{
		Title:    "Grocery",
		Category: types.CategoryNote,
		Content:  "milk",
		Tags:     []string{"home"},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, alice, card.ID, types.CardPatch{Title: ptr("Groceries")})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", updated.Title)
	assert.Equal(t, types.CategoryNote, updated.Category)
	assert.Equal(t, "milk", updated.Content)
	assert.Equal(t, []string{"home"}, updated.Tags)
	assert.Equal(t, card.CreatedAt, updated.CreatedAt)
	assert.Greater(t, updated.UpdatedAt, card.UpdatedAt)

	cleared, err := svc.Update(ctx, alice, card.ID, types.CardPatch{Content: ptr(""), Tags: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "", cleared.Content)
	assert.Equal(t, []string{}, cleared.Tags)
	assert.Equal(t, "Groceries", cleared.Title)

	published := events.Events()
	require.Len(t, published, 3)
	assert.Equal(t, types.CardUpdated, published[2].Type)
}

func TestCardService_Update_EmptyPatchStillAdvancesUpdatedAt(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Category: types.CategoryText})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, alice, card.ID, types.CardPatch{})
	require.NoError(t, err)
	assert.Greater(t, updated.UpdatedAt, card.UpdatedAt)
}

func TestCardService_Update_Ownership(t *testing.T) {
	svc, repo, events := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Title: "Grocery", Category: types.CategoryNote})
	require.NoError(t, err)

	_, err = svc.Update(ctx, bob, card.ID, types.CardPatch{Title: ptr("X")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, bob, "missing", types.CardPatch{Title: ptr("X")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	stored, err := repo.Get(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grocery", stored.Title)
	assert.Len(t, events.Events(), 1)
}

func TestCardService_Update_InvalidCategory(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Category: types.CategoryNote})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alice, card.ID, types.CardPatch{Category: ptr(types.Category("poem"))})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category must be one of story, prompt, note, text", verr.Message)
}

func TestCardService_Update_OwnershipBeforeValidation(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Category: types.CategoryNote})
	require.NoError(t, err)

	bogus := types.CardPatch{Category: ptr(types.Category("bogus")), Title: ptr("a\x00b")}

	_, err = svc.Update(ctx, bob, card.ID, bogus)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, alice, "missing", bogus)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Update(ctx, alice, card.ID, bogus)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category", verr.Field)
}

func TestCardService_RejectsNULBytes(t *testing.T) {
	svc, repo, events := newCardService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		card  types.Card
		field string
	}{
		{"title", types.Card{Title: "a\x00", Category: types.CategoryNote}, "title"},
		{"content", types.Card{Content: "\x00", Category: types.CategoryNote}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, alice, tt.card)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	card, err := svc.Create(ctx, alice, types.Card{Title: "ok", Category: types.CategoryNote})
	require.NoError(t, err)
	_, err = svc.Update(ctx, alice, card.ID, types.CardPatch{Content: ptr("x\x00y")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	stored, err := repo.Get(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card, stored)
	assert.Len(t, events.Events(), 1)
}

func TestCardService_Delete(t *testing.T) {
	svc, _, events := newCardService(t)
	ctx := context.Background()

	card, err := svc.Create(ctx, alice, types.Card{Category: types.CategoryStory})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, bob, card.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, alice, card.ID))
	assert.ErrorIs(t, svc.Delete(ctx, alice, card.ID), store.ErrNotFound)

	_, err = svc.Get(ctx, alice, card.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	published := events.Events()
	require.Len(t, published, 2)
	assert.Equal(t, types.CardDeleted, published[1].Type)
	assert.Equal(t, card.ID, published[1].CardID)
}

func TestCardService_Stats(t *testing.T) {
	svc, _, _ := newCardService(t)
	ctx := context.Background()

	for _, c := range []types.Category{types.CategoryStory, types.CategoryStory, types.CategoryNote} {
		_, err := svc.Create(ctx, alice, types.Card{Category: c})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, bob, types.Card{Category: types.CategoryPrompt})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, types.CardStats{Total: 3, Stories: 2, Notes: 1}, stats)
}

func TestCardService_PublishFailureDoesNotFailMutation(t *testing.T) {
	var buf bytes.Buffer
	repo := testutil.NewCardRepo()
	events := &testutil.Publisher{Err: errors.New("broker unavailable")}
	svc := NewCardService(repo, events, logger.NewWithWriter(&buf, -4))

	card, err := svc.Create(context.Background(), alice, types.Card{Category: types.CategoryNote})
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "failed to publish card event")
	assert.Contains(t, buf.String(), "broker unavailable")
}

func TestCardService_NilPublisher(t *testing.T) {
	svc := NewCardService(testutil.NewCardRepo(), nil, nil)

	_, err := svc.Create(context.Background(), alice, types.Card{Category: types.CategoryNote})
	assert.NoError(t, err)
}
