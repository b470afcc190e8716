package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursor is the opaque position carried by a page token. Lists are keyed by document ID.
type Cursor struct {
	AfterID string `json:"after"`
}

// EncodeToken serialises the cursor into a base64 URL-safe page token. An empty cursor yields no token.
func EncodeToken(cursor Cursor) string {
	if strings.TrimSpace(cursor.AfterID) == "" {
		return ""
	}
	data, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a page token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if strings.TrimSpace(cursor.AfterID) == "" {
		return Cursor{}, fmt.Errorf("%w: missing position", ErrInvalidPageToken)
	}
	return cursor, nil
}
