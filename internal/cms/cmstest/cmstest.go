// Package cmstest provides an in-memory content backend for tests.
package cmstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/cms"
	"github.com/bryan-buckman/spacetraveling/internal/model"
)

// MasterRef is the ref served by every fake backend.
const MasterRef = "master-ref"

var (
	typePredicate = regexp.MustCompile(`^\[\[at\(document\.type,"([^"]+)"\)\]\]$`)
	uidPredicate  = regexp.MustCompile(`^\[\[at\(my\.([^.]+)\.uid,"(.*)"\)\]\]$`)
)

// Server is a fake content backend serving a fixed set of posts.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	docs     []cms.Document
	fail     bool
	requests int64
}

// NewServer starts a fake backend holding docs in listing order.
func NewServer(docs ...cms.Document) *Server {
	s := &Server{docs: docs}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", s.handleRoot)
	mux.HandleFunc("/api/v2/documents/search", s.handleSearch)
	s.Server = httptest.NewServer(s.count(mux))
	return s
}

// Endpoint is the API root to hand to cms.NewClient.
func (s *Server) Endpoint() string {
	return s.URL + "/api/v2"
}

// SetFailing makes every request answer 503 until reset.
func (s *Server) SetFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// SetDocs replaces the served documents.
func (s *Server) SetDocs(docs ...cms.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
}

// Requests returns how many requests were served.
func (s *Server) Requests() int64 {
	return atomic.LoadInt64(&s.requests)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requests, 1)
		s.mu.Lock()
		fail := s.fail
		s.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"refs": []cms.Ref{{ID: "master", Ref: MasterRef, Label: "Master", IsMasterRef: true}},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("ref") != MasterRef {
		http.Error(w, "bad ref", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	docs := append([]cms.Document(nil), s.docs...)
	s.mu.Unlock()

	predicate := q.Get("q")
	var matched []cms.Document
	switch {
	case typePredicate.MatchString(predicate):
		docType := typePredicate.FindStringSubmatch(predicate)[1]
		for _, d := range docs {
			if d.Type == docType {
				matched = append(matched, d)
			}
		}
	case uidPredicate.MatchString(predicate):
		m := uidPredicate.FindStringSubmatch(predicate)
		for _, d := range docs {
			if d.Type == m[1] && d.UID == m[2] {
				matched = append(matched, d)
			}
		}
	default:
		http.Error(w, "unsupported predicate", http.StatusBadRequest)
		return
	}

	pageSize := atoiDefault(q.Get("pageSize"), 20)
	page := atoiDefault(q.Get("page"), 1)
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	totalPages := (len(matched) + pageSize - 1) / pageSize
	resp := cms.Response{
		PageNumber:       page,
		ResultsPerPage:   pageSize,
		TotalResultsSize: len(matched),
		TotalPages:       totalPages,
		Results:          matched[start:end],
	}
	if resp.Results == nil {
		resp.Results = []cms.Document{}
	}
	if page < totalPages {
		next := *r.URL
		nq := next.Query()
		nq.Set("page", strconv.Itoa(page+1))
		next.RawQuery = nq.Encode()
		u := s.URL + next.RequestURI()
		resp.NextPage = &u
	}
	writeJSON(w, resp)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Post builds a post document whose body is a single paragraph of text.
func Post(uid, title string, published time.Time, paragraphs ...string) cms.Document {
	content := make([]map[string]interface{}, 0, len(paragraphs))
	for i, p := range paragraphs {
		content = append(content, map[string]interface{}{
			"heading": fmt.Sprintf("Seção %d", i+1),
			"body":    []map[string]interface{}{{"type": "paragraph", "text": p, "spans": []interface{}{}}},
		})
	}
	data, _ := json.Marshal(map[string]interface{}{
		"title":    title,
		"subtitle": "Subtítulo de " + title,
		"author":   "Autor de " + title,
		"banner":   model.Banner{URL: "https://images.example/" + uid + ".png", Alt: "Banner " + title},
		"content":  content,
	})
	return cms.Document{
		ID:                   "id-" + uid,
		UID:                  uid,
		Type:                 model.TypePost,
		FirstPublicationDate: model.Timestamp{Time: published},
		LastPublicationDate:  model.Timestamp{Time: published},
		Data:                 data,
	}
}
