package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

var ErrInvalidToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Normalize clamps PageSize to [1, max], substituting def when unset, and
// rejects tokens that do not decode to a keyset position.
func (p Pagination) Normalize(def, max int) (Pagination, error) {
	switch {
	case p.PageSize <= 0:
		p.PageSize = def
	case p.PageSize > max:
		p.PageSize = max
	}
	if p.PageToken != "" {
		cursor, err := DecodeCursor(p.PageToken)
		if err != nil {
			return Pagination{}, ErrInvalidToken
		}
		if _, _, err := cursor.Keyset(); err != nil {
			return Pagination{}, ErrInvalidToken
		}
	}
	return p, nil
}

// Cursor is the last row of a page under (created_at desc, id desc).
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func CursorAt(id int64, createdAt time.Time) Cursor {
	return Cursor{
		ID:        strconv.FormatInt(id, 10),
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	}
}

func (c Cursor) Keyset() (time.Time, int64, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}, 0, err
	}
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		return time.Time{}, 0, err
	}
	return createdAt.UTC(), id, nil
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Page trims rows fetched with limit+1 and reports whether more follow.
func Page[T any](rows []*T, limit int, cursor func(*T) Cursor) ([]T, PageInfo) {
	var info PageInfo
	if len(rows) > limit {
		info.HasMore = true
		rows = rows[:limit]
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}

	if info.HasMore && len(rows) > 0 {
		// An unencodable cursor ends paging rather than failing the list.
		if token, err := EncodeCursor(cursor(rows[len(rows)-1])); err == nil {
			info.NextPageToken = token
		} else {
			info.HasMore = false
		}
	}
	return out, info
}
