// Package site writes the blog as a tree of static files.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bryan-buckman/spacetraveling/internal/cms"
	"github.com/bryan-buckman/spacetraveling/internal/feed"
	"github.com/bryan-buckman/spacetraveling/internal/listing"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/bryan-buckman/spacetraveling/internal/view"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Posts is the content the site is generated from.
type Posts interface {
	Home(ctx context.Context) (model.Page, error)
	Post(ctx context.Context, uid string) (*model.PostDetail, error)
}

// Options configures a build.
type Options struct {
	SiteTitle   string
	BaseURL     string
	Concurrency int
}

// Builder generates the static site.
type Builder struct {
	posts  Posts
	loader *listing.Loader
	view   *view.View
	opts   Options
	logger *zap.Logger
}

// Report summarises a build.
type Report struct {
	Pages int
	Posts int
	Bytes int64
}

func (r Report) String() string {
	return fmt.Sprintf("%d pages, %d posts, %s", r.Pages, r.Posts, humanize.Bytes(uint64(r.Bytes)))
}

// NewBuilder creates a builder.
func NewBuilder(posts Posts, loader *listing.Loader, opts Options, logger *zap.Logger) (*Builder, error) {
	v, err := view.New(opts.SiteTitle)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Builder{posts: posts, loader: loader, view: v, opts: opts, logger: logger}, nil
}

// Build writes the site into outDir:
//
//	index.html              first listing page
//	posts/more/{n}.html     load-more fragment for listing batch n (n >= 2)
//	post/{uid}/index.html   every post reachable through the listing
//	404.html                missing-post page
//	feed.xml                RSS of every post
//	static/                 stylesheet and scripts
//
// Each fragment's load-more button points at the next fragment, so the
// listing behaves as it does when served.
func (b *Builder) Build(ctx context.Context, outDir string) (Report, error) {
	var (
		report  Report
		written int64
	)
	write := func(rel string, data []byte) error {
		path := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		atomic.AddInt64(&written, int64(len(data)))
		return nil
	}

	first, err := b.posts.Home(ctx)
	if err != nil {
		return report, fmt.Errorf("load first page: %w", err)
	}

	// Batch n is served at fragmentURL(n); the button rendered after batch
	// n-1 points there.
	batch := 2
	fragmentURL := func(string) string { return fmt.Sprintf("/posts/more/%d.html", batch) }

	state := listing.Initial(first)
	var buf bytes.Buffer
	if err := b.view.Home(&buf, state, fragmentURL); err != nil {
		return report, fmt.Errorf("render index: %w", err)
	}
	if err := write("index.html", buf.Bytes()); err != nil {
		return report, err
	}
	report.Pages++

	session := listing.NewSession(b.loader, state)
	defer session.Close()
	for {
		before := session.State()
		after, err := session.LoadMore(ctx)
		if errors.Is(err, listing.ErrExhausted) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("load listing batch %d: %w", batch, err)
		}

		rel := fmt.Sprintf("posts/more/%d.html", batch)
		batch++
		buf.Reset()
		if err := b.view.More(&buf, after.Posts[len(before.Posts):], after, fragmentURL); err != nil {
			return report, fmt.Errorf("render %s: %w", rel, err)
		}
		if err := write(rel, buf.Bytes()); err != nil {
			return report, err
		}
		report.Pages++
	}
	all := session.State().Posts
	b.logger.Info("listing walked", zap.Int("posts", len(all)), zap.Int("batches", batch-1))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	var rendered int64
	for _, summary := range all {
		uid := summary.UID
		if !safeSegment(uid) {
			b.logger.Warn("post uid is not a safe path segment, skipping", zap.String("uid", uid))
			continue
		}
		g.Go(func() error {
			post, err := b.posts.Post(gctx, uid)
			if errors.Is(err, cms.ErrNotFound) {
				b.logger.Warn("post listed but not found, skipping", zap.String("uid", uid))
				return nil
			}
			if err != nil {
				return fmt.Errorf("load post %s: %w", uid, err)
			}
			var pbuf bytes.Buffer
			if err := b.view.Post(&pbuf, post); err != nil {
				return fmt.Errorf("render post %s: %w", uid, err)
			}
			if err := write("post/"+uid+"/index.html", pbuf.Bytes()); err != nil {
				return err
			}
			atomic.AddInt64(&rendered, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Posts = int(rendered)
	report.Pages += report.Posts

	buf.Reset()
	if err := b.view.NotFound(&buf); err != nil {
		return report, fmt.Errorf("render 404: %w", err)
	}
	if err := write("404.html", buf.Bytes()); err != nil {
		return report, err
	}
	report.Pages++

	rss, err := feed.Build(b.opts.SiteTitle, b.opts.BaseURL, all)
	if err != nil {
		return report, fmt.Errorf("build feed: %w", err)
	}
	if err := write("feed.xml", rss); err != nil {
		return report, err
	}

	if err := copyStatic(view.Static(), write); err != nil {
		return report, fmt.Errorf("copy static: %w", err)
	}

	report.Bytes = atomic.LoadInt64(&written)
	return report, nil
}

func copyStatic(static fs.FS, write func(string, []byte) error) error {
	return fs.WalkDir(static, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(static, path)
		if err != nil {
			return err
		}
		return write("static/"+path, data)
	})
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
