// Package view renders the blog's pages and fragments.
package view

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/datefmt"
	"github.com/bryan-buckman/spacetraveling/internal/listing"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/bryan-buckman/spacetraveling/internal/readtime"
	"github.com/bryan-buckman/spacetraveling/internal/richtext"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Static returns the stylesheet and scripts served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// MoreURLFunc maps a listing cursor to the URL the load-more button
// requests. It is only called while the listing has a next page.
type MoreURLFunc func(nextPage string) string

// View holds the parsed templates.
type View struct {
	templates *template.Template
	siteTitle string
}

// New parses the embedded templates.
func New(siteTitle string) (*View, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatDate": datefmt.Format,
		"isoDate":    datefmt.ISO,
		"readTime":   readtime.Estimate,
		"richText":   richTextHTML,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &View{templates: tmpl, siteTitle: siteTitle}, nil
}

// richTextHTML renders a structured body. Bodies of any other shape render
// as nothing, matching how they are left out of the read time.
func richTextHTML(body json.RawMessage) template.HTML {
	doc, ok := richtext.Parse(body)
	if !ok {
		return ""
	}
	return richtext.AsHTML(doc)
}

// Meta is shared by every full page.
type Meta struct {
	Title     string
	SiteTitle string
	Refresh   int
}

// ListingData is what the listing page and the load-more fragment render.
type ListingData struct {
	Meta
	Posts   []model.PostSummary
	MoreURL string
	Error   bool
}

func (v *View) listingData(st listing.State, moreURL MoreURLFunc) ListingData {
	d := ListingData{
		Meta:  Meta{Title: "Posts | " + v.siteTitle, SiteTitle: v.siteTitle},
		Posts: st.Posts,
		Error: st.Err != nil,
	}
	if st.CanLoadMore() {
		d.MoreURL = moreURL(st.NextPage())
	}
	return d
}

// Home renders the listing page for st.
func (v *View) Home(w io.Writer, st listing.State, moreURL MoreURLFunc) error {
	return v.templates.ExecuteTemplate(w, "home.html", v.listingData(st, moreURL))
}

// More renders the load-more fragment: the posts of batch followed by a new
// load-more control for the state after the batch was applied. When the
// load failed, the fragment only carries the retry control.
func (v *View) More(w io.Writer, batch []model.PostSummary, after listing.State, moreURL MoreURLFunc) error {
	d := v.listingData(after, moreURL)
	d.Posts = batch
	if d.Error {
		d.Posts = nil
	}
	return v.templates.ExecuteTemplate(w, "more.html", d)
}

// PostData is what the post page renders.
type PostData struct {
	Meta
	Post    *model.PostDetail
	Loading bool
}

// Post renders a post page.
func (v *View) Post(w io.Writer, post *model.PostDetail) error {
	return v.templates.ExecuteTemplate(w, "post.html", PostData{
		Meta: Meta{Title: post.Title + " | " + v.siteTitle, SiteTitle: v.siteTitle},
		Post: post,
	})
}

// Loading renders the post placeholder shown while the post cannot be
// resolved yet. A positive retry makes the browser reload after that delay.
func (v *View) Loading(w io.Writer, retry time.Duration) error {
	return v.templates.ExecuteTemplate(w, "post.html", PostData{
		Meta:    Meta{Title: "Post | " + v.siteTitle, SiteTitle: v.siteTitle, Refresh: int(retry.Seconds())},
		Loading: true,
	})
}

// NotFound renders the missing-post page.
func (v *View) NotFound(w io.Writer) error {
	return v.templates.ExecuteTemplate(w, "notfound.html", Meta{
		Title:     "Post não encontrado | " + v.siteTitle,
		SiteTitle: v.siteTitle,
	})
}
