package types

// Category classifies a card. The set of categories is fixed.
type Category string

const (
	CategoryStory  Category = "story"
	CategoryPrompt Category = "prompt"
	CategoryNote   Category = "note"
	CategoryText   Category = "text"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryStory, CategoryPrompt, CategoryNote, CategoryText}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStory, CategoryPrompt, CategoryNote, CategoryText:
		return true
	default:
		return false
	}
}

// Card is a single user-owned note.
type Card struct {
	// ID is the opaque unique identifier of the card.
	ID string `json:"id" db:"id"`

	// UserID is the owner of the card. It is fixed at creation and
	// omitted from client payloads.
	UserID string `json:"-" db:"user_id"`

	// Title is a free-text heading; it may be empty.
	Title string `json:"title" db:"title"`

	// Category is one of the fixed categories.
	Category Category `json:"category" db:"category"`

	// Content is the free-text body of the card.
	Content string `json:"content" db:"content"`

	// Tags are ordered short labels. Duplicates are kept as given.
	Tags []string `json:"tags" db:"tags_json"`

	// CreatedAt is the creation time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt" db:"created_at"`

	// UpdatedAt is the time of the most recent mutation in epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt" db:"updated_at"`
}

// CardPatch carries the fields of a partial update. Nil fields are left unchanged.
type CardPatch struct {
	Title    *string
	Category *Category
	Content  *string
	Tags     []string
}

// CardStats summarizes a deck by category.
type CardStats struct {
	Total   int `json:"total"`
	Stories int `json:"stories"`
	Prompts int `json:"prompts"`
	Notes   int `json:"notes"`
	Texts   int `json:"texts"`
}

// Add counts n cards of the given category.
func (s *CardStats) Add(category Category, n int) {
	switch category {
	case CategoryStory:
		s.Stories += n
	case CategoryPrompt:
		s.Prompts += n
	case CategoryNote:
		s.Notes += n
	case CategoryText:
		s.Texts += n
	}
	s.Total += n
}
