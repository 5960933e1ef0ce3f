/*
Package randx provides identifier generation for the chat server.

Message and connection identifiers are UUID v4 strings; object keys for uploaded files are
namespaced by owner and keep the original file extension.
*/
package randx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MessageID generates a UUID v4 string identifying a stored message.
func MessageID() string {
	return uuid.New().String()
}

// ConnectionID generates a UUID v4 string identifying one live websocket connection.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidID reports whether id is a canonical UUID string.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// ObjectKey builds a storage key "<prefix>/<owner>/<uuid><ext>" for an uploaded file.
// The extension of fileName is lower-cased; files without one get none.
func ObjectKey(prefix, owner, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", prefix, owner, uuid.New().String(), ext)
}
