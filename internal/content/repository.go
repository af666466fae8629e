// Package content serves posts from the document cache, revalidating them
// against the content backend once they are older than the configured age.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/cms"
	"github.com/bryan-buckman/spacetraveling/internal/database"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchTimeout bounds a backend fetch shared by concurrent readers.
const FetchTimeout = 30 * time.Second

// Cache keys.
const (
	KeyHome    = "home"
	postPrefix = "post:"
)

// PostKey is the cache key of the post with the given uid.
func PostKey(uid string) string {
	return postPrefix + uid
}

// Backend is the part of the content client the repository needs.
type Backend interface {
	GetByType(ctx context.Context, docType string, q cms.Query) (*cms.Response, error)
	GetByUID(ctx context.Context, docType, uid string) (*cms.Document, error)
}

// Repository reads posts through the cache.
type Repository struct {
	backend    Backend
	store      database.Store
	pageSize   int
	revalidate time.Duration
	logger     *zap.Logger
	now        func() time.Time
	group      singleflight.Group
}

// NewRepository creates a repository. pageSize is the size of the first
// listing page; revalidate is how long a cached document is trusted.
func NewRepository(backend Backend, store database.Store, pageSize int, revalidate time.Duration, logger *zap.Logger) *Repository {
	return &Repository{
		backend:    backend,
		store:      store,
		pageSize:   pageSize,
		revalidate: revalidate,
		logger:     logger,
		now:        time.Now,
	}
}

// Home returns the first page of the listing.
func (r *Repository) Home(ctx context.Context) (model.Page, error) {
	body, err := r.cached(ctx, KeyHome)
	if err != nil {
		return model.Page{}, err
	}
	var resp cms.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Page{}, fmt.Errorf("decode cached home: %w", err)
	}
	return resp.Page()
}

// Post returns the post with the given uid, or an error wrapping
// cms.ErrNotFound.
func (r *Repository) Post(ctx context.Context, uid string) (*model.PostDetail, error) {
	body, err := r.cached(ctx, PostKey(uid))
	if err != nil {
		return nil, err
	}
	var doc cms.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode cached post %s: %w", uid, err)
	}
	return doc.Detail()
}

// PostUIDs lists the uid of every published post, walking all pages.
// The result is not cached.
func (r *Repository) PostUIDs(ctx context.Context) ([]string, error) {
	var uids []string
	for page := 1; ; page++ {
		resp, err := r.backend.GetByType(ctx, model.TypePost, cms.Query{PageSize: cms.MaxPageSize, Page: page})
		if err != nil {
			return nil, fmt.Errorf("list posts page %d: %w", page, err)
		}
		for _, d := range resp.Results {
			uids = append(uids, d.UID)
		}
		if resp.NextPage == nil || len(resp.Results) == 0 {
			return uids, nil
		}
	}
}

// CachedPostUIDs lists the uids of posts currently in the cache.
func (r *Repository) CachedPostUIDs() ([]string, error) {
	keys, err := r.store.ListKeys(postPrefix)
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(keys))
	for _, k := range keys {
		uids = append(uids, strings.TrimPrefix(k, postPrefix))
	}
	return uids, nil
}

// Refresh refetches key regardless of its age. Unlike reads, it reports
// a failed fetch even when a stale copy exists.
func (r *Repository) Refresh(ctx context.Context, key string) error {
	_, err := r.load(ctx, key)
	return err
}

// cached returns the body stored under key, refetching it when it is
// missing or stale. A stale copy is served when the refetch fails for any
// reason other than the document being gone.
func (r *Repository) cached(ctx context.Context, key string) ([]byte, error) {
	entry, err := r.store.GetEntry(key)
	if err != nil && !errors.Is(err, database.ErrMiss) {
		r.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		entry = nil
	}
	if entry != nil && r.now().Sub(entry.FetchedAt) < r.revalidate {
		return entry.Body, nil
	}

	body, err := r.load(ctx, key)
	if err == nil {
		return body, nil
	}
	if entry != nil && !errors.Is(err, cms.ErrNotFound) && ctx.Err() == nil {
		r.logger.Warn("revalidation failed, serving stale copy",
			zap.String("key", key),
			zap.Time("fetched_at", entry.FetchedAt),
			zap.Error(err))
		return entry.Body, nil
	}
	return nil, err
}

// load fetches key from the backend, sharing one request between
// concurrent callers. The shared fetch is detached from the caller that
// started it, so one caller giving up does not fail the others; it is
// bounded by FetchTimeout instead. A document that is gone is evicted.
func (r *Repository) load(ctx context.Context, key string) ([]byte, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return r.fetch(fctx, key)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if errors.Is(res.Err, cms.ErrNotFound) {
		if delErr := r.store.DeleteEntry(key); delErr != nil {
			r.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, res.Err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.([]byte), nil
}

func (r *Repository) fetch(ctx context.Context, key string) ([]byte, error) {
	var (
		doc interface{}
		err error
	)
	switch {
	case key == KeyHome:
		doc, err = r.backend.GetByType(ctx, model.TypePost, cms.Query{PageSize: r.pageSize})
	case strings.HasPrefix(key, postPrefix):
		doc, err = r.backend.GetByUID(ctx, model.TypePost, strings.TrimPrefix(key, postPrefix))
	default:
		return nil, fmt.Errorf("unknown cache key %q", key)
	}
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	entry := &model.CacheEntry{Key: key, Body: body, FetchedAt: r.now()}
	if err := r.store.PutEntry(entry); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	r.logger.Debug("revalidated", zap.String("key", key), zap.Int("bytes", len(body)))
	return body, nil
}
