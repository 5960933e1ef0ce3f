/*
Package user contains the account model, the credential helpers and the store contract
for registered users.
*/
package user

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when no account has the requested username.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicate is returned when registering a username that already exists.
	ErrDuplicate = errors.New("username already exists")
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// DefaultAvatarBase renders an initials avatar when a user never set a picture.
const DefaultAvatarBase = "https://ui-avatars.com/api/"

// Account is a registered user as stored.
type Account struct {
	Username       string
	PasswordHash   string
	ProfilePicture string
	LastSeen       time.Time
	CreatedAt      time.Time
}

// Profile is the public view of an account.
type Profile struct {
	Username       string     `json:"username"`
	ProfilePicture string     `json:"profilePicture"`
	Online         bool       `json:"online"`
	LastSeen       *time.Time `json:"lastSeen,omitempty"`
}

// Profile builds the public view of a; online comes from the presence tracker.
func (a *Account) Profile(online bool) Profile {
	p := Profile{
		Username:       a.Username,
		ProfilePicture: AvatarURL(a.Username, a.ProfilePicture),
		Online:         online,
	}
	if !a.LastSeen.IsZero() {
		lastSeen := a.LastSeen
		p.LastSeen = &lastSeen
	}
	return p
}

// Store persists accounts.
type Store interface {
	// Create returns ErrDuplicate when username is taken.
	Create(ctx context.Context, username, passwordHash string) (*Account, error)

	// GetByUsername returns ErrNotFound for unknown users.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// UpdateAvatar returns ErrNotFound for unknown users.
	UpdateAvatar(ctx context.Context, username, profilePicture string) error

	// TouchLastSeen stamps the account's last-seen time; unknown users are ignored.
	TouchLastSeen(ctx context.Context, username string, at time.Time) error

	// Search returns up to limit accounts whose username contains query,
	// case-insensitively, excluding the username exclude.
	Search(ctx context.Context, query, exclude string, limit int) ([]Account, error)
}

// ValidUsername reports whether name satisfies the username format.
func ValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

// ValidPassword reports whether password has between 6 and 72 characters.
// bcrypt ignores input past 72 bytes.
func ValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= 6 && n <= 72 && len(password) <= 72
}

// HashPassword hashes password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AvatarURL returns profilePicture, or a deterministic generated avatar for username
// when it is empty.
func AvatarURL(username, profilePicture string) string {
	if profilePicture != "" {
		return profilePicture
	}
	return DefaultAvatarURL(username)
}

// DefaultAvatarURL returns the generated avatar URL for username.
func DefaultAvatarURL(username string) string {
	q := url.Values{}
	q.Set("name", username)
	q.Set("background", "random")
	return DefaultAvatarBase + "?" + q.Encode()
}
