package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/rohmanhakim/crawlsvc/internal/model"
)

// badgerStore is the durable Store adapter. LockURL and LockURLsBulk run
// inside db.Update, badger's single-writer transaction, which is the atomic
// "set if absent" primitive the URL lock set requires: two concurrent
// callers racing on the same key can never both observe ErrKeyNotFound and
// both succeed.
type badgerStore struct {
	db   *badger.DB
	hold *badgerhold.Store
}

// storedCrawlRecord is the badgerhold-queryable projection of
// model.StoredCrawl (badgerhold needs exported fields and gob-friendly
// types, so url.URL and compiled regexes are stored separately from the
// queryable envelope).
type storedCrawlRecord struct {
	ID         string `badgerholdKey:"ID"`
	OriginURL  string
	Plan       string
	TenantID   string
	WebhookURL string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Completed  int
	Total      int
	Robots     string
	OptionsRaw []byte
}

func Open(dataDir string) (Store, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open badger at %s: %w", dataDir, err)
	}
	hold, err := badgerhold.UpgradeReopen(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: open badgerhold: %w", err)
	}
	return &badgerStore{db: db, hold: hold}, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) PutCrawl(_ context.Context, c model.StoredCrawl) error {
	raw, err := json.Marshal(crawlerOptionsDTO{
		MaxDepth:           c.Options.MaxDepth(),
		MaxCrawledLinks:    c.Options.MaxCrawledLinks(),
		Limit:              c.Options.Limit(),
		AllowExternalLinks: c.Options.AllowExternalLinks(),
		IgnoreSitemap:      c.Options.IgnoreSitemap(),
		ReturnOnlyURLs:     c.Options.ReturnOnlyURLs(),
	})
	if err != nil {
		return err
	}
	rec := storedCrawlRecord{
		ID:         c.ID,
		OriginURL:  c.Origin.String(),
		Plan:       c.Plan,
		TenantID:   c.TenantID,
		WebhookURL: c.WebhookURL,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Completed:  c.Completed,
		Total:      c.Total,
		Robots:     c.Robots,
		OptionsRaw: raw,
	}
	return s.hold.Upsert(c.ID, rec)
}

type crawlerOptionsDTO struct {
	MaxDepth           int
	MaxCrawledLinks    int
	Limit              int
	AllowExternalLinks bool
	IgnoreSitemap      bool
	ReturnOnlyURLs     bool
}

func (s *badgerStore) GetCrawl(_ context.Context, id string) (model.StoredCrawl, bool, error) {
	var rec storedCrawlRecord
	if err := s.hold.Get(id, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return model.StoredCrawl{}, false, nil
		}
		return model.StoredCrawl{}, false, err
	}

	var dto crawlerOptionsDTO
	if err := json.Unmarshal(rec.OptionsRaw, &dto); err != nil {
		return model.StoredCrawl{}, false, err
	}
	opts, err := model.NewCrawlerOptions().
		WithMaxDepth(dto.MaxDepth).
		WithMaxCrawledLinks(dto.MaxCrawledLinks).
		WithLimit(dto.Limit).
		WithAllowExternalLinks(dto.AllowExternalLinks).
		WithIgnoreSitemap(dto.IgnoreSitemap).
		WithReturnOnlyURLs(dto.ReturnOnlyURLs).
		Build()
	if err != nil {
		return model.StoredCrawl{}, false, err
	}

	origin, err := parseURL(rec.OriginURL)
	if err != nil {
		return model.StoredCrawl{}, false, err
	}

	return model.StoredCrawl{
		ID:         rec.ID,
		Origin:     origin,
		Options:    opts,
		Plan:       rec.Plan,
		TenantID:   rec.TenantID,
		WebhookURL: rec.WebhookURL,
		Status:     model.CrawlStatus(rec.Status),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		Completed:  rec.Completed,
		Total:      rec.Total,
		Robots:     rec.Robots,
	}, true, nil
}

func (s *badgerStore) UpdateCrawlStatus(ctx context.Context, id string, status model.CrawlStatus) error {
	c, ok, err := s.GetCrawl(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("kvstore: crawl %s not found", id)
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return s.PutCrawl(ctx, c)
}

func (s *badgerStore) IncrementCrawlCompleted(ctx context.Context, id string) error {
	c, ok, err := s.GetCrawl(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("kvstore: crawl %s not found", id)
	}
	c.Completed++
	c.UpdatedAt = time.Now()
	return s.PutCrawl(ctx, c)
}

func (s *badgerStore) IncrementCrawlTotal(ctx context.Context, id string, delta int) error {
	c, ok, err := s.GetCrawl(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("kvstore: crawl %s not found", id)
	}
	c.Total += delta
	c.UpdatedAt = time.Now()
	return s.PutCrawl(ctx, c)
}

func (s *badgerStore) DeleteCrawl(_ context.Context, id string) error {
	err := s.hold.Delete(id, storedCrawlRecord{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

func (s *badgerStore) LockURL(_ context.Context, crawlID, normalizedURL string) (bool, error) {
	key := []byte(KeyLock(crawlID, normalizedURL))
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(key, []byte{1}); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *badgerStore) LockURLsBulk(_ context.Context, crawlID string, normalizedURLs []string) ([]string, error) {
	acquired := make([]string, 0, len(normalizedURLs))
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, u := range normalizedURLs {
			key := []byte(KeyLock(crawlID, u))
			_, err := txn.Get(key)
			if err == nil {
				continue
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Set(key, []byte{1}); err != nil {
				return err
			}
			acquired = append(acquired, u)
		}
		return nil
	})
	return acquired, err
}

func (s *badgerStore) LockedCount(_ context.Context, crawlID string) (int, error) {
	count := 0
	prefix := []byte("lock:" + crawlID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *badgerStore) AddJobMember(_ context.Context, crawlID, jobID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(KeyJobMember(crawlID, jobID)), []byte{1})
	})
}

func (s *badgerStore) RemoveJobMember(_ context.Context, crawlID, jobID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(KeyJobMember(crawlID, jobID)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *badgerStore) JobMemberCount(_ context.Context, crawlID string) (int, error) {
	count := 0
	prefix := []byte("job:" + crawlID + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

type cachedDocumentDTO struct {
	Doc model.Document
}

func (s *badgerStore) CacheDocument(_ context.Context, normalizedURL string, doc model.Document, ttl time.Duration) error {
	raw, err := json.Marshal(cachedDocumentDTO{Doc: doc})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(KeyCache(normalizedURL)), raw)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *badgerStore) GetCachedDocument(_ context.Context, normalizedURL string) (model.Document, bool, error) {
	var dto cachedDocumentDTO
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(KeyCache(normalizedURL)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dto)
		})
	})
	if err == badger.ErrKeyNotFound {
		return model.Document{}, false, nil
	}
	if err != nil {
		return model.Document{}, false, err
	}
	return dto.Doc, true, nil
}

func parseURL(raw string) (url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, err
	}
	return *u, nil
}
