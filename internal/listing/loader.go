package listing

import (
	"context"
	"net/http"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/fetch"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"golang.org/x/sync/singleflight"
)

// FetchTimeout bounds a page request shared by concurrent callers.
const FetchTimeout = 30 * time.Second

// PageFetcher dereferences a cursor URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (model.Page, error)
}

// HTTPFetcher fetches pages over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// FetchPage implements PageFetcher.
func (f HTTPFetcher) FetchPage(ctx context.Context, url string) (model.Page, error) {
	return fetch.FetchPage(ctx, f.Client, url)
}

// Loader shares one in-flight request between concurrent triggers for the
// same cursor.
type Loader struct {
	fetcher PageFetcher
	group   singleflight.Group
}

// NewLoader creates a loader backed by fetcher.
func NewLoader(fetcher PageFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// Load fetches the page behind url. Callers asking for the same url while a
// request is running receive its result. The request is detached from the
// caller that started it and bounded by FetchTimeout, so a caller giving up
// only fails its own Load.
func (l *Loader) Load(ctx context.Context, url string) (model.Page, error) {
	ch := l.group.DoChan(url, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return l.fetcher.FetchPage(fctx, url)
	})
	select {
	case <-ctx.Done():
		return model.Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Page{}, res.Err
		}
		return res.Val.(model.Page), nil
	}
}

// LoadMore applies the next page to s. It returns ErrExhausted when s has no
// further page, and a state carrying the error when the fetch fails.
func (l *Loader) LoadMore(ctx context.Context, s State) (State, error) {
	if !s.CanLoadMore() {
		return s, ErrExhausted
	}
	page, err := l.Load(ctx, s.NextPage())
	if err != nil {
		return Fail(s, err), err
	}
	return Apply(s, page), nil
}
