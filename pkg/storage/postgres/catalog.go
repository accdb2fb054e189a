package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// CatalogStore reads book display data from the catalog tables. It never writes.
type CatalogStore struct {
	readers ReadPool
}

// NewCatalogStore creates a catalog reader; each lookup picks a pool from readers
func NewCatalogStore(readers ReadPool) *CatalogStore {
	return &CatalogStore{readers: readers}
}

const bookDisplaysSQL = `
	SELECT b.id, b.title, COALESCE(b.description, ''), COALESCE(a.name, ''),
		COALESCE(c.name, ''), COALESCE(pc.name, ''), COALESCE(b.cover_image_url, ''),
		COALESCE(b.status, 0), COALESCE(b.word_count, 0),
		COALESCE(lc.title, ''), COALESCE(lc.chapter_number, 0), b.update_time
	FROM books b
	LEFT JOIN authors a ON a.id = b.author_id
	LEFT JOIN categories c ON c.id = b.category_id
	LEFT JOIN categories pc ON pc.id = c.parent_id
	LEFT JOIN LATERAL (
		SELECT ch.title, ch.chapter_number
		FROM chapters ch
		WHERE ch.book_id = b.id
		ORDER BY ch.chapter_number DESC
		LIMIT 1
	) lc ON TRUE
	WHERE b.id = ANY($1)
`

// BookDisplays loads display rows for the given books. Unknown ids are absent from the map.
func (s *CatalogStore) BookDisplays(ctx context.Context, bookIDs []int64) (map[int64]storage.BookDisplay, error) {
	result := make(map[int64]storage.BookDisplay, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}

	rows, err := s.readers.Replica().QueryContext(ctx, bookDisplaysSQL, pq.Array(bookIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query book displays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d storage.BookDisplay
		var updated sql.NullTime
		if err := rows.Scan(&d.BookID, &d.Title, &d.Description, &d.AuthorName,
			&d.CategoryName, &d.ParentCategoryName, &d.CoverImageURL,
			&d.Status, &d.WordCount, &d.LatestChapterTitle, &d.LatestChapterNum, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan book display: %w", err)
		}
		d.UpdatedAt = updated.Time
		result[d.BookID] = d
	}
	return result, rows.Err()
}
