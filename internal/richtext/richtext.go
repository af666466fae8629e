// Package richtext converts structured rich-text documents into plain text
// and safe markup.
package richtext

import (
	"encoding/json"
	"html/template"
	"net/url"
	"sort"
	"strings"
)

// Block types.
const (
	TypeParagraph     = "paragraph"
	TypePreformatted  = "preformatted"
	TypeHeading1      = "heading1"
	TypeHeading2      = "heading2"
	TypeHeading3      = "heading3"
	TypeHeading4      = "heading4"
	TypeHeading5      = "heading5"
	TypeHeading6      = "heading6"
	TypeListItem      = "list-item"
	TypeOrderedItem   = "o-list-item"
	TypeImage         = "image"
	SpanStrong        = "strong"
	SpanEm            = "em"
	SpanHyperlink     = "hyperlink"
	defaultJoinString = " "
)

// Span marks a rune range of a block's text.
type Span struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Type  string   `json:"type"`
	Data  SpanData `json:"data"`
}

// SpanData carries hyperlink targets.
type SpanData struct {
	URL    string `json:"url"`
	Target string `json:"target"`
}

// Block is a single element of a document.
type Block struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
	URL   string `json:"url"`
	Alt   string `json:"alt"`
}

// Document is an ordered sequence of blocks.
type Document []Block

// Parse decodes raw as a document. It reports false when raw is not a
// JSON array of blocks, e.g. a string of already rendered markup.
func Parse(raw json.RawMessage) (Document, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// AsText returns the text of every block joined by a space.
func AsText(doc Document) string {
	parts := make([]string, 0, len(doc))
	for _, b := range doc {
		if b.Type == TypeImage {
			continue
		}
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, defaultJoinString)
}

// AsHTML renders doc as escaped markup. Consecutive list items are grouped
// into a single list element.
func AsHTML(doc Document) template.HTML {
	var sb strings.Builder
	openList := ""
	closeList := func() {
		if openList != "" {
			sb.WriteString("</" + openList + ">")
			openList = ""
		}
	}

	for _, b := range doc {
		var list string
		switch b.Type {
		case TypeListItem:
			list = "ul"
		case TypeOrderedItem:
			list = "ol"
		}
		if list != openList {
			closeList()
			if list != "" {
				sb.WriteString("<" + list + ">")
				openList = list
			}
		}

		switch b.Type {
		case TypeListItem, TypeOrderedItem:
			writeElement(&sb, "li", b)
		case TypeHeading1, TypeHeading2, TypeHeading3, TypeHeading4, TypeHeading5, TypeHeading6:
			writeElement(&sb, "h"+strings.TrimPrefix(b.Type, "heading"), b)
		case TypePreformatted:
			writeElement(&sb, "pre", b)
		case TypeImage:
			sb.WriteString(`<p class="block-img"><img src="`)
			sb.WriteString(template.HTMLEscapeString(safeURL(b.URL)))
			sb.WriteString(`" alt="`)
			sb.WriteString(template.HTMLEscapeString(b.Alt))
			sb.WriteString(`"></p>`)
		default:
			writeElement(&sb, "p", b)
		}
	}
	closeList()

	// Every piece of text above is escaped.
	return template.HTML(sb.String())
}

func writeElement(sb *strings.Builder, tag string, b Block) {
	sb.WriteString("<" + tag + ">")
	sb.WriteString(renderSpans(b.Text, b.Spans))
	sb.WriteString("</" + tag + ">")
}

// renderSpans applies spans by rune offset. Spans are expected to nest;
// a span overlapping a still-open one is closed at the outer boundary.
func renderSpans(text string, spans []Span) string {
	runes := []rune(text)
	if len(spans) == 0 {
		return template.HTMLEscapeString(text)
	}

	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var sb strings.Builder
	var stack []Span
	next := 0
	for i := 0; i <= len(runes); i++ {
		for len(stack) > 0 && stack[len(stack)-1].End <= i {
			sb.WriteString(closeTag(stack[len(stack)-1]))
			stack = stack[:len(stack)-1]
		}
		if i == len(runes) {
			break
		}
		for next < len(sorted) && sorted[next].Start == i {
			s := sorted[next]
			if len(stack) > 0 && s.End > stack[len(stack)-1].End {
				s.End = stack[len(stack)-1].End
			}
			sb.WriteString(openTag(s))
			stack = append(stack, s)
			next++
		}
		sb.WriteString(template.HTMLEscapeString(string(runes[i])))
	}
	return sb.String()
}

func openTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "<strong>"
	case SpanEm:
		return "<em>"
	case SpanHyperlink:
		attrs := ` href="` + template.HTMLEscapeString(safeURL(s.Data.URL)) + `"`
		if s.Data.Target != "" {
			attrs += ` target="` + template.HTMLEscapeString(s.Data.Target) + `" rel="noopener noreferrer"`
		}
		return "<a" + attrs + ">"
	default:
		return `<span class="` + template.HTMLEscapeString(s.Type) + `">`
	}
}

func closeTag(s Span) string {
	switch s.Type {
	case SpanStrong:
		return "</strong>"
	case SpanEm:
		return "</em>"
	case SpanHyperlink:
		return "</a>"
	default:
		return "</span>"
	}
}

var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

// safeURL returns u when it is a relative reference or uses an allowed
// scheme, and "#" otherwise. Tab and newline characters are dropped first,
// as browsers ignore them inside URLs.
func safeURL(u string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return -1
		}
		return r
	}, u)
	cleaned = strings.TrimFunc(cleaned, func(r rune) bool { return r <= ' ' })

	parsed, err := url.Parse(cleaned)
	if err != nil {
		return "#"
	}
	if parsed.Scheme != "" && !allowedSchemes[parsed.Scheme] {
		return "#"
	}
	return cleaned
}
