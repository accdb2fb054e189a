package ranking

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// Book status values in the catalog
const (
	StatusCompleted   = 0
	StatusSerializing = 1
)

const categorySeparator = " • "

// EnricherConfig sizes the display cache
type EnricherConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultEnricherConfig caches 10k books for five minutes
func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{Size: 10000, TTL: 5 * time.Minute}
}

// Enricher decorates ranked items with catalog display fields. Lookups are cached;
// a catalog failure leaves the affected items undecorated.
type Enricher struct {
	catalog storage.Catalog
	cache   *lru.LRU[int64, storage.BookDisplay]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEnricher creates an enricher over catalog
func NewEnricher(catalog storage.Catalog, config EnricherConfig, logger *observability.Logger, metrics *observability.Metrics) *Enricher {
	if config.Size <= 0 {
		config.Size = DefaultEnricherConfig().Size
	}
	if config.TTL <= 0 {
		config.TTL = DefaultEnricherConfig().TTL
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Enricher{
		catalog: catalog,
		cache:   lru.NewLRU[int64, storage.BookDisplay](config.Size, nil, config.TTL),
		logger:  logger,
		metrics: metrics,
	}
}

// Enrich fills display fields in place
func (e *Enricher) Enrich(ctx context.Context, items []Item) {
	if len(items) == 0 {
		return
	}

	displays := make(map[int64]storage.BookDisplay, len(items))
	var missing []int64
	for _, item := range items {
		if d, ok := e.cache.Get(item.BookID); ok {
			e.metrics.RecordCacheLookup("book_display", true)
			displays[item.BookID] = d
			continue
		}
		e.metrics.RecordCacheLookup("book_display", false)
		missing = append(missing, item.BookID)
	}

	if len(missing) > 0 {
		fetched, err := e.catalog.BookDisplays(ctx, missing)
		if err != nil {
			e.logger.Ctx(ctx).WithError(err).
				WithField("books", len(missing)).
				Warn("catalog lookup failed; returning undecorated ranking items")
		}
		for id, d := range fetched {
			e.cache.Add(id, d)
			displays[id] = d
		}
	}

	for i := range items {
		if d, ok := displays[items[i].BookID]; ok {
			applyDisplay(&items[i], d)
		}
	}
}

// Purge drops every cached display
func (e *Enricher) Purge() {
	e.cache.Purge()
}

func applyDisplay(item *Item, d storage.BookDisplay) {
	item.Title = d.Title
	item.Description = d.Description
	item.AuthorName = d.AuthorName
	item.CategoryName = CategoryLabel(d.ParentCategoryName, d.CategoryName)
	item.CoverImageURL = d.CoverImageURL
	item.StatusText = StatusText(d.Status)
	item.WordCount = d.WordCount
	item.LatestChapterTitle = d.LatestChapterTitle
	item.LatestChapterNum = d.LatestChapterNum
	item.LastUpdatedTime = d.UpdatedAt
}

// CategoryLabel renders "Parent • Child", or whichever part exists
func CategoryLabel(parent, child string) string {
	switch {
	case parent != "" && child != "":
		return parent + categorySeparator + child
	case child != "":
		return child
	default:
		return parent
	}
}

// StatusText renders a catalog status code
func StatusText(status int) string {
	if status == StatusSerializing {
		return "serializing"
	}
	return "completed"
}
