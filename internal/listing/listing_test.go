package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func post(uid string) model.PostSummary {
	return model.PostSummary{UID: uid, Title: "Post " + uid}
}

func uids(posts []model.PostSummary) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.UID)
	}
	return out
}

// pages serves a fixed chain of pages keyed by URL.
type pages struct {
	mu      sync.Mutex
	byURL   map[string]model.Page
	calls   int32
	release chan struct{}
	err     error
}

func (p *pages) FetchPage(ctx context.Context, url string) (model.Page, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return model.Page{}, ctx.Err()
		}
	}
	if p.err != nil {
		return model.Page{}, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.byURL[url]
	if !ok {
		return model.Page{}, fmt.Errorf("no page %s", url)
	}
	return page, nil
}

func TestApply_EndToEnd(t *testing.T) {
	state := Initial(model.Page{Posts: []model.PostSummary{post("P1")}, Cursor: model.Cursor{NextPage: strPtr("page2")}})
	require.True(t, state.CanLoadMore())
	assert.Equal(t, "page2", state.NextPage())

	next := Apply(state, model.Page{Posts: []model.PostSummary{post("P2")}})

	assert.Equal(t, []string{"P1", "P2"}, uids(next.Posts))
	assert.True(t, next.Cursor.Exhausted())
	assert.False(t, next.CanLoadMore())
	assert.Equal(t, "", next.NextPage())

	// the previous snapshot is unchanged
	assert.Equal(t, []string{"P1"}, uids(state.Posts))
}

func TestApply_ArrivalOrderNoDedup(t *testing.T) {
	state := Initial(model.Page{Posts: []model.PostSummary{post("a"), post("b")}, Cursor: model.Cursor{NextPage: strPtr("2")}})
	batches := [][]model.PostSummary{
		{post("c")},
		{post("d"), post("b")},
		{},
		{post("e"), post("f"), post("g")},
	}
	total := len(state.Posts)
	for i, batch := range batches {
		state = Apply(state, model.Page{Posts: batch, Cursor: model.Cursor{NextPage: strPtr(fmt.Sprint(i + 3))}})
		total += len(batch)
	}
	assert.Len(t, state.Posts, total)
	assert.Equal(t, []string{"a", "b", "c", "d", "b", "e", "f", "g"}, uids(state.Posts))
}

func TestFail_KeepsPosts(t *testing.T) {
	state := Initial(model.Page{Posts: []model.PostSummary{post("P1")}, Cursor: model.Cursor{NextPage: strPtr("page2")}})
	failed := Fail(state, errors.New("boom"))
	assert.EqualError(t, failed.Err, "boom")
	assert.Equal(t, state.Posts, failed.Posts)
	assert.Equal(t, "page2", failed.NextPage())

	recovered := Apply(failed, model.Page{Posts: []model.PostSummary{post("P2")}})
	assert.NoError(t, recovered.Err)
}

func TestLoader_LoadMore(t *testing.T) {
	src := &pages{byURL: map[string]model.Page{
		"page2": {Posts: []model.PostSummary{post("P2")}, Cursor: model.Cursor{NextPage: strPtr("page3")}},
		"page3": {Posts: []model.PostSummary{post("P3")}},
	}}
	loader := NewLoader(src)
	state := Initial(model.Page{Posts: []model.PostSummary{post("P1")}, Cursor: model.Cursor{NextPage: strPtr("page2")}})

	state, err := loader.LoadMore(context.Background(), state)
	require.NoError(t, err)
	state, err = loader.LoadMore(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, uids(state.Posts))

	after, err := loader.LoadMore(context.Background(), state)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, state.Posts, after.Posts)
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.calls))
}

func TestLoader_FailureKeepsState(t *testing.T) {
	loader := NewLoader(&pages{err: errors.New("decode failed")})
	state := Initial(model.Page{Posts: []model.PostSummary{post("P1")}, Cursor: model.Cursor{NextPage: strPtr("page2")}})

	next, err := loader.LoadMore(context.Background(), state)
	require.Error(t, err)
	assert.Equal(t, []string{"P1"}, uids(next.Posts))
	assert.True(t, next.CanLoadMore())
	assert.Error(t, next.Err)
}

func TestLoader_SharesInFlightRequest(t *testing.T) {
	src := &pages{
		byURL:   map[string]model.Page{"page2": {Posts: []model.PostSummary{post("P2")}}},
		release: make(chan struct{}),
	}
	loader := NewLoader(src)

	var wg sync.WaitGroup
	results := make([]model.Page, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page, err := loader.Load(context.Background(), "page2")
			assert.NoError(t, err)
			results[i] = page
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) == 1 }, time.Second, time.Millisecond)
	// give the other callers time to join the running request
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&src.calls))
	for _, r := range results {
		assert.Equal(t, []string{"P2"}, uids(r.Posts))
	}
}

func TestSession_SingleInFlight(t *testing.T) {
	src := &pages{
		byURL:   map[string]model.Page{"page2": {Posts: []model.PostSummary{post("P2")}}},
		release: make(chan struct{}),
	}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("P1")},
		Cursor: model.Cursor{NextPage: strPtr("page2")},
	}))

	done := make(chan error, 1)
	go func() {
		_, err := session.LoadMore(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) == 1 }, time.Second, time.Millisecond)

	st, err := session.LoadMore(context.Background())
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, []string{"P1"}, uids(st.Posts))

	close(src.release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"P1", "P2"}, uids(session.State().Posts))
	_, err = session.LoadMore(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.calls))
}

func TestSession_ClosedDiscardsResult(t *testing.T) {
	src := &pages{
		byURL:   map[string]model.Page{"page2": {Posts: []model.PostSummary{post("P2")}}},
		release: make(chan struct{}),
	}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("P1")},
		Cursor: model.Cursor{NextPage: strPtr("page2")},
	}))

	done := make(chan error, 1)
	go func() {
		_, err := session.LoadMore(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) == 1 }, time.Second, time.Millisecond)

	session.Close()
	close(src.release)
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Equal(t, []string{"P1"}, uids(session.State().Posts))

	_, err := session.LoadMore(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_Drain(t *testing.T) {
	src := &pages{byURL: map[string]model.Page{
		"2": {Posts: []model.PostSummary{post("b")}, Cursor: model.Cursor{NextPage: strPtr("3")}},
		"3": {Posts: []model.PostSummary{post("c")}, Cursor: model.Cursor{NextPage: strPtr("4")}},
		"4": {Posts: []model.PostSummary{post("d")}},
	}}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("a")},
		Cursor: model.Cursor{NextPage: strPtr("2")},
	}))

	st, err := session.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, uids(st.Posts))
	assert.False(t, st.CanLoadMore())
}

func TestSession_DrainStopsOnError(t *testing.T) {
	src := &pages{byURL: map[string]model.Page{
		"2": {Posts: []model.PostSummary{post("b")}, Cursor: model.Cursor{NextPage: strPtr("missing")}},
	}}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("a")},
		Cursor: model.Cursor{NextPage: strPtr("2")},
	}))

	st, err := session.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, uids(st.Posts))
	assert.Equal(t, "missing", st.NextPage())
}

func TestLoader_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := &pages{
		byURL:   map[string]model.Page{"page2": {Posts: []model.PostSummary{post("P2")}}},
		release: make(chan struct{}),
	}
	loader := NewLoader(src)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctxA, "page2")
		errA <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) == 1 }, time.Second, time.Millisecond)

	type result struct {
		page model.Page
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		page, err := loader.Load(context.Background(), "page2")
		resB <- result{page, err}
	}()
	// let the second caller join the running request
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(src.release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, []string{"P2"}, uids(got.page.Posts))
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.calls))
}

func TestSession_DrainStopsOnRepeatedCursor(t *testing.T) {
	src := &pages{byURL: map[string]model.Page{
		"2": {Posts: []model.PostSummary{post("b")}, Cursor: model.Cursor{NextPage: strPtr("3")}},
		"3": {Posts: []model.PostSummary{post("c")}, Cursor: model.Cursor{NextPage: strPtr("2")}},
	}}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("a")},
		Cursor: model.Cursor{NextPage: strPtr("2")},
	}))

	st, err := session.Drain(context.Background())
	require.ErrorIs(t, err, ErrCursorRepeated)
	assert.Equal(t, []string{"a", "b", "c"}, uids(st.Posts))
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.calls))
}

func TestSession_FailedCursorCanBeRetried(t *testing.T) {
	src := &pages{
		byURL: map[string]model.Page{"page2": {Posts: []model.PostSummary{post("P2")}}},
		err:   errors.New("backend down"),
	}
	session := NewSession(NewLoader(src), Initial(model.Page{
		Posts:  []model.PostSummary{post("P1")},
		Cursor: model.Cursor{NextPage: strPtr("page2")},
	}))

	_, err := session.LoadMore(context.Background())
	require.Error(t, err)

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	st, err := session.LoadMore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, uids(st.Posts))
}
