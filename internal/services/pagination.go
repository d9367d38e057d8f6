package services

import (
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
)

// PostPage is one newest-first slice of an index. NextCursor is empty once the index is exhausted.
type PostPage struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor string         `json:"next_cursor"`
	HasMore    bool           `json:"has_more"`
}

// parseCursor turns an opaque cursor into the last-seen post id; "" means start from the newest entry.
func parseCursor(cursor string) (*uuid.UUID, error) {
	if cursor == "" {
		return nil, nil
	}
	id, err := uuid.Parse(cursor)
	if err != nil {
		return nil, invalid("malformed cursor")
	}
	return &id, nil
}

// splitPage trims ids fetched with pageSize+1 and derives the next cursor from the oldest kept id.
func splitPage(ids []uuid.UUID, pageSize int) ([]uuid.UUID, string) {
	if len(ids) <= pageSize {
		return ids, ""
	}
	ids = ids[:pageSize]
	return ids, ids[len(ids)-1].String()
}
