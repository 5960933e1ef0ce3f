package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"dmchat/internal/pkg/randx"
)

const (
	// MaxAvatarBytes bounds an uploaded avatar image.
	MaxAvatarBytes = 5 << 20

	// AvatarPrefix namespaces avatar object keys.
	AvatarPrefix = "avatars"

	// PresignExpiry is the lifetime of a presigned avatar upload URL.
	PresignExpiry = 10 * time.Minute
)

var (
	// ErrAvatarInvalid reports a malformed data URL or an unsupported image type.
	ErrAvatarInvalid = errors.New("invalid avatar image")

	// ErrAvatarTooLarge reports an image over MaxAvatarBytes.
	ErrAvatarTooLarge = errors.New("avatar image too large")
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsDataURL reports whether s looks like an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// ParseDataURL decodes a base64 "data:<mime>;base64,<data>" URL.
func ParseDataURL(s string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrAvatarInvalid
	}

	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrAvatarInvalid
	}

	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrAvatarInvalid
	}

	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, ErrAvatarInvalid
	}

	return strings.ToLower(mimeType), data, nil
}

// ValidateAvatar checks the type and size of an avatar image.
func ValidateAvatar(mimeType string, size int64) error {
	if _, ok := avatarExtensions[mimeType]; !ok {
		return ErrAvatarInvalid
	}
	if size <= 0 {
		return ErrAvatarInvalid
	}
	if size > MaxAvatarBytes {
		return ErrAvatarTooLarge
	}
	return nil
}

// AvatarKey returns a fresh object key for an avatar of username.
func AvatarKey(username, mimeType string) string {
	return randx.ObjectKey(AvatarPrefix, username, "avatar"+avatarExtensions[mimeType])
}

// UploadAvatar uploads an inline data URL image and returns its public URL.
func UploadAvatar(ctx context.Context, svc StorageService, username, dataURL string) (string, error) {
	mimeType, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	if err := ValidateAvatar(mimeType, int64(len(data))); err != nil {
		return "", err
	}

	key := AvatarKey(username, mimeType)
	if err := svc.Upload(ctx, key, mimeType, bytes.NewReader(data)); err != nil {
		return "", err
	}

	return svc.PublicURL(key), nil
}

// OwnedAvatarKey returns the object key behind url when url points at one of username's
// avatars in svc. URLs outside the public base or the user's avatar prefix report false.
func OwnedAvatarKey(svc StorageService, username, url string) (string, bool) {
	key, ok := strings.CutPrefix(url, svc.PublicURL(""))
	if !ok || !strings.HasPrefix(key, AvatarPrefix+"/"+username+"/") {
		return "", false
	}
	return key, true
}
