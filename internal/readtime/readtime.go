// Package readtime estimates how long a post takes to read.
package readtime

import (
	"fmt"
	"math"
	"strings"

	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/bryan-buckman/spacetraveling/internal/richtext"
)

// WordsPerMinute is the assumed reading speed.
const WordsPerMinute = 200

// Words counts the words of every block heading plus every body that is a
// non-empty rich-text document. Bodies of any other shape count as zero.
func Words(blocks []model.ContentBlock) int {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(" ")
		sb.WriteString(b.Heading)

		doc, ok := richtext.Parse(b.Body)
		if !ok || len(doc) == 0 {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(richtext.AsText(doc))
	}
	return len(strings.Fields(sb.String()))
}

// Minutes converts a word count into whole minutes, rounding up.
// Zero words yield zero minutes.
func Minutes(words int) int {
	return int(math.Ceil(float64(words) / WordsPerMinute))
}

// Estimate returns the reading time of blocks formatted as "{n} min".
func Estimate(blocks []model.ContentBlock) string {
	return fmt.Sprintf("%d min", Minutes(Words(blocks)))
}
