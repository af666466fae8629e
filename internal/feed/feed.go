// Package feed exports the post listing as an RSS 2.0 document.
package feed

import (
	"strings"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/gorilla/feeds"
)

// Language is the channel language of the exported feed.
const Language = "pt-BR"

// Build generates an RSS document for posts, linking each one under
// baseURL/post/{uid}. Posts without a publication date carry no pubDate.
func Build(title, baseURL string, posts []model.PostSummary) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	f := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: base + "/"},
		Description: "Posts | " + title,
	}

	var newest time.Time
	for _, p := range posts {
		link := base + "/post/" + p.UID
		item := &feeds.Item{
			Id:          link,
			Title:       p.Title,
			Link:        &feeds.Link{Href: link},
			Description: p.Subtitle,
			Created:     p.PublishedAt.UTC(),
		}
		if p.Author != "" {
			item.Author = &feeds.Author{Name: p.Author}
		}
		f.Items = append(f.Items, item)
		if p.PublishedAt.After(newest) {
			newest = p.PublishedAt
		}
	}
	if !newest.IsZero() {
		f.Updated = newest.UTC()
	}

	rss := (&feeds.Rss{Feed: f}).RssFeed()
	rss.Language = Language
	out, err := feeds.ToXML(rss)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
