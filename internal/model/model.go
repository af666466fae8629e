// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// PostSummary is a post as shown on the listing page.
type PostSummary struct {
	UID         string
	PublishedAt time.Time
	Title       string
	Subtitle    string
	Author      string
}

// Banner is the hero image of a post.
type Banner struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// ContentBlock is one section of a post. Body is kept raw because the
// backend may send either structured rich text or pre-rendered markup.
type ContentBlock struct {
	Heading string          `json:"heading"`
	Body    json.RawMessage `json:"body"`
}

// PostDetail is a fully resolved post.
type PostDetail struct {
	UID         string         `json:"-"`
	PublishedAt time.Time      `json:"-"`
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle"`
	Author      string         `json:"author"`
	Banner      Banner         `json:"banner"`
	Content     []ContentBlock `json:"content"`
}

// Cursor points at the next page of a listing. A nil NextPage means the
// listing is exhausted.
type Cursor struct {
	NextPage *string
}

// Exhausted reports whether no further pages exist.
func (c Cursor) Exhausted() bool {
	return c.NextPage == nil
}

// Page is one decoded batch of the listing.
type Page struct {
	Cursor Cursor
	Posts  []PostSummary
}

// PostSummaryData is the data section of a post on the wire.
type PostSummaryData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
}

// PostSummaryWire is a post as it appears in a pagination response.
type PostSummaryWire struct {
	UID                  string          `json:"uid"`
	FirstPublicationDate Timestamp       `json:"first_publication_date"`
	Data                 PostSummaryData `json:"data"`
}

// PaginationWire is the body of a pagination response.
type PaginationWire struct {
	NextPage *string           `json:"next_page"`
	Results  []PostSummaryWire `json:"results"`
}

// Summary maps a wire post to its listing shape.
func (w PostSummaryWire) Summary() PostSummary {
	return PostSummary{
		UID:         w.UID,
		PublishedAt: w.FirstPublicationDate.Time,
		Title:       w.Data.Title,
		Subtitle:    w.Data.Subtitle,
		Author:      w.Data.Author,
	}
}

// Page maps a pagination response to a listing page.
func (w PaginationWire) Page() Page {
	posts := make([]PostSummary, 0, len(w.Results))
	for _, r := range w.Results {
		posts = append(posts, r.Summary())
	}
	return Page{Cursor: Cursor{NextPage: w.NextPage}, Posts: posts}
}

// Timestamp decodes the backend's publication dates, which carry a
// colon-less zone offset ("2021-03-15T19:25:28+0000").
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

// ParseTimestamp parses a backend publication date.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05-0700"))
}

// CacheEntry is a backend response kept for revalidation.
type CacheEntry struct {
	Key       string
	Body      []byte
	FetchedAt time.Time
}

// Settings key constants.
const (
	SettingLastRevalidated = "last_revalidated"
)

// Document type names used against the content backend.
const (
	TypePost = "post"
)
