package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	ID int64 `json:"id"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Size clamps the requested page size to [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

func EncodeCursor(data Cursor) string {
	b, _ := json.Marshal(data)
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Apply restricts stmt to rows after the page token ordered by ascending id,
// fetching one extra row so callers can detect HasMore.
func Apply(stmt *gorm.DB, page Pagination) (*gorm.DB, error) {
	if page.PageToken != "" {
		cursor, err := DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("id > ?", cursor.ID)
	}
	return stmt.Order("id asc").Limit(page.Size() + 1), nil
}

// Trim cuts an over-fetched page back to size and reports the next token.
func Trim[T any](data []T, page Pagination, idOf func(T) int64) ([]T, PageInfo) {
	size := page.Size()
	if len(data) <= size {
		return data, PageInfo{}
	}
	data = data[:size]
	return data, PageInfo{
		HasMore:       true,
		NextPageToken: EncodeCursor(Cursor{ID: idOf(data[len(data)-1])}),
	}
}
