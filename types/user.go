package types

// User represents an account in the system.
// Users are created by registration and are never renamed or removed.
type User struct {
	// ID is the opaque unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Username is the unique, case-sensitive login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the salted bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the creation time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt" db:"created_at"`
}

// PublicUser is the subset of User fields safe to return to clients.
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Public strips credential material from the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

// Identity is the caller identity carried by a session token.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
