// Package cms is a client for the headless content backend's REST API.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bryan-buckman/spacetraveling/internal/fetch"
	"github.com/bryan-buckman/spacetraveling/internal/model"
)

// ErrNotFound is returned when no document matches a lookup.
var ErrNotFound = errors.New("cms: document not found")

// MaxPageSize is the largest page the backend serves.
const MaxPageSize = 100

// Ref is a content release; the master ref is the published content.
type Ref struct {
	ID          string `json:"id"`
	Ref         string `json:"ref"`
	Label       string `json:"label"`
	IsMasterRef bool   `json:"isMasterRef"`
}

type apiRoot struct {
	Refs []Ref `json:"refs"`
}

// Document is one content item.
type Document struct {
	ID                   string          `json:"id"`
	UID                  string          `json:"uid"`
	Type                 string          `json:"type"`
	FirstPublicationDate model.Timestamp `json:"first_publication_date"`
	LastPublicationDate  model.Timestamp `json:"last_publication_date"`
	Data                 json.RawMessage `json:"data"`
}

// Response is one page of search results.
type Response struct {
	PageNumber       int        `json:"page"`
	ResultsPerPage   int        `json:"results_per_page"`
	TotalResultsSize int        `json:"total_results_size"`
	TotalPages       int        `json:"total_pages"`
	NextPage         *string    `json:"next_page"`
	PrevPage         *string    `json:"prev_page"`
	Results          []Document `json:"results"`
}

// Query narrows a listing.
type Query struct {
	PageSize int
	Page     int
	// Orderings is passed through, e.g. "[document.first_publication_date desc]".
	Orderings string
}

// Client talks to one content repository.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client
}

// NewClient creates a client for the API root at endpoint
// (e.g. "https://spacetraveling.cdn.prismic.io/api/v2").
func NewClient(endpoint, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		accessToken: accessToken,
		http:        httpClient,
	}
}

// HTTPClient returns the client used for requests, so cursor URLs handed out
// by the backend can be followed with the same transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// MasterRef returns the ref of the published content.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	root, err := fetch.GetJSON[apiRoot](ctx, c.http, c.withToken(c.endpoint, url.Values{}))
	if err != nil {
		return "", fmt.Errorf("get api root: %w", err)
	}
	for _, r := range root.Refs {
		if r.IsMasterRef {
			return r.Ref, nil
		}
	}
	return "", fmt.Errorf("get api root: no master ref")
}

// GetByType lists documents of type docType.
func (c *Client) GetByType(ctx context.Context, docType string, q Query) (*Response, error) {
	predicate := fmt.Sprintf(`[[at(document.type,"%s")]]`, docType)
	return c.search(ctx, predicate, q)
}

// GetByUID fetches the document of type docType whose uid is uid.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (*Document, error) {
	predicate := fmt.Sprintf(`[[at(my.%s.uid,"%s")]]`, docType, escapeQuotes(uid))
	resp, err := c.search(ctx, predicate, Query{PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%s %q: %w", docType, uid, ErrNotFound)
	}
	return &resp.Results[0], nil
}

// SearchURL builds the URL of a search request without issuing it.
func (c *Client) SearchURL(ref, predicate string, q Query) string {
	v := url.Values{}
	v.Set("ref", ref)
	v.Set("q", predicate)
	if q.PageSize > 0 {
		size := q.PageSize
		if size > MaxPageSize {
			size = MaxPageSize
		}
		v.Set("pageSize", strconv.Itoa(size))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Orderings != "" {
		v.Set("orderings", q.Orderings)
	}
	return c.withToken(c.endpoint+"/documents/search", v)
}

func (c *Client) search(ctx context.Context, predicate string, q Query) (*Response, error) {
	ref, err := c.MasterRef(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := fetch.GetJSON[Response](ctx, c.http, c.SearchURL(ref, predicate, q))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", predicate, err)
	}
	return &resp, nil
}

func (c *Client) withToken(base string, v url.Values) string {
	if c.accessToken != "" {
		v.Set("access_token", c.accessToken)
	}
	if len(v) == 0 {
		return base
	}
	return base + "?" + v.Encode()
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Summary maps a post document to its listing shape.
func (d Document) Summary() (model.PostSummary, error) {
	var data model.PostSummaryData
	if err := json.Unmarshal(d.Data, &data); err != nil {
		return model.PostSummary{}, fmt.Errorf("decode %s data: %w", d.UID, err)
	}
	return model.PostSummary{
		UID:         d.UID,
		PublishedAt: d.FirstPublicationDate.Time,
		Title:       data.Title,
		Subtitle:    data.Subtitle,
		Author:      data.Author,
	}, nil
}

// Detail maps a post document to its full shape.
func (d Document) Detail() (*model.PostDetail, error) {
	var post model.PostDetail
	if err := json.Unmarshal(d.Data, &post); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", d.UID, err)
	}
	post.UID = d.UID
	post.PublishedAt = d.FirstPublicationDate.Time
	return &post, nil
}

// Page maps a search response to a listing page.
func (r *Response) Page() (model.Page, error) {
	page := model.Page{Cursor: model.Cursor{NextPage: r.NextPage}}
	for _, d := range r.Results {
		s, err := d.Summary()
		if err != nil {
			return model.Page{}, err
		}
		page.Posts = append(page.Posts, s)
	}
	return page, nil
}
