// Package listing holds the state of the paginated post listing and the
// load-more transition that grows it.
package listing

import (
	"errors"

	"github.com/bryan-buckman/spacetraveling/internal/model"
)

// ErrExhausted is returned when load-more is triggered after the last page.
var ErrExhausted = errors.New("listing: no more pages")

// State is an immutable snapshot of the listing. Posts keep arrival order:
// the initial batch first, then every fetched batch appended at the tail.
// Posts are not de-duplicated; the backend must not repeat a post across pages.
type State struct {
	Posts  []model.PostSummary
	Cursor model.Cursor
	// Err is the failure of the last load-more, kept so the page can offer a
	// retry while still showing the posts already loaded.
	Err error
}

// Initial seeds a listing from its first, pre-fetched page.
func Initial(page model.Page) State {
	return State{
		Posts:  append([]model.PostSummary(nil), page.Posts...),
		Cursor: page.Cursor,
	}
}

// CanLoadMore reports whether a further page exists.
func (s State) CanLoadMore() bool {
	return !s.Cursor.Exhausted()
}

// NextPage returns the cursor URL, or "" once exhausted.
func (s State) NextPage() string {
	if s.Cursor.NextPage == nil {
		return ""
	}
	return *s.Cursor.NextPage
}

// Apply returns the state after page arrived: the cursor is replaced and the
// page's posts are appended. s is left untouched.
func Apply(s State, page model.Page) State {
	posts := make([]model.PostSummary, 0, len(s.Posts)+len(page.Posts))
	posts = append(posts, s.Posts...)
	posts = append(posts, page.Posts...)
	return State{Posts: posts, Cursor: page.Cursor}
}

// Fail returns s with err recorded. Posts and cursor are kept so the same
// page can be requested again.
func Fail(s State, err error) State {
	s.Err = err
	return s
}
