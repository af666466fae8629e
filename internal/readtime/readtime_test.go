package readtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraph(t *testing.T, words int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal([]map[string]interface{}{
		{"type": "paragraph", "text": strings.TrimSpace(strings.Repeat("palavra ", words)), "spans": []interface{}{}},
	})
	require.NoError(t, err)
	return raw
}

func TestEstimate_Rounding(t *testing.T) {
	tests := []struct {
		words int
		want  string
	}{
		{0, "0 min"},
		{1, "1 min"},
		{199, "1 min"},
		{200, "1 min"},
		{201, "2 min"},
		{400, "2 min"},
		{1001, "6 min"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.words), func(t *testing.T) {
			blocks := []model.ContentBlock{{Body: paragraph(t, tt.words)}}
			assert.Equal(t, tt.words, Words(blocks))
			assert.Equal(t, tt.want, Estimate(blocks))
		})
	}
}

func TestEstimate_Empty(t *testing.T) {
	assert.Equal(t, "0 min", Estimate(nil))
	assert.Equal(t, 0, Words([]model.ContentBlock{{Heading: "   ", Body: json.RawMessage(`[]`)}}))
}

func TestWords_HeadingsCount(t *testing.T) {
	blocks := []model.ContentBlock{
		{Heading: "Proin et varius", Body: paragraph(t, 10)},
		{Heading: "Cras laoreet", Body: paragraph(t, 5)},
	}
	assert.Equal(t, 3+10+2+5, Words(blocks))
}

func TestWords_UnrecognizedBodiesExcluded(t *testing.T) {
	blocks := []model.ContentBlock{
		{Heading: "Um dois", Body: json.RawMessage(`"<p>três quatro cinco</p>"`)},
		{Heading: "seis", Body: json.RawMessage(`{"type": "paragraph", "text": "sete oito"}`)},
		{Heading: "nove", Body: nil},
		{Heading: "dez", Body: json.RawMessage(`null`)},
	}
	assert.Equal(t, 5, Words(blocks))
	assert.Equal(t, "1 min", Estimate(blocks))
}

func TestWords_WhitespaceRuns(t *testing.T) {
	body := json.RawMessage(`[{"type": "paragraph", "text": "  a\t\tb \n\n c  "}, {"type": "paragraph", "text": ""}]`)
	assert.Equal(t, 4, Words([]model.ContentBlock{{Heading: "título", Body: body}}))
}
