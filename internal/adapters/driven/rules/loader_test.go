package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

const practiceRules = `
review_floor: 0.75
identifiers:
  ClientID: ['\b([A-Z]{2,5}-\d{3,6})\b']
rules:
  - name: form_adv
    signal: filename
    glob: "*Form_ADV*"
    target: "Clients/{ClientID}/Regulatory/"
    confidence: 0.92
  - name: engagement
    type: content
    pattern: '(?i)engagement\s+letter'
    target: "Clients/{ClientID}/Engagement/"
    confidence: 0.80
  - name: spreadsheets
    signal: extension
    extensions: [XLSX, ".csv"]
    target: "Admin/Spreadsheets/"
    confidence: 0.5
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	rs, err := NewLoader(domain.DefaultReviewFloor).Load(context.Background(), writeRules(t, practiceRules))
	require.NoError(t, err)

	require.Len(t, rs.Rules, 3)
	assert.InDelta(t, 0.75, rs.ReviewFloor, 1e-9)
	assert.Len(t, rs.Version, 64)

	adv := rs.Rules[0]
	assert.Equal(t, domain.SignalFilename, adv.Signal)
	assert.Equal(t, "*Form_ADV*", adv.Glob)
	assert.InDelta(t, 0.92, adv.Confidence, 1e-9)

	engagement := rs.Rules[1]
	assert.Equal(t, domain.SignalContent, engagement.Signal)
	assert.Equal(t, `(?i)engagement\s+letter`, engagement.Regex)

	assert.Equal(t, []string{".xlsx", ".csv"}, rs.Rules[2].Extensions)

	assert.Equal(t, []string{`\b([A-Z]{2,5}-\d{3,6})\b`}, rs.Identifiers[domain.PlaceholderClientID])
	assert.NotEmpty(t, rs.Identifiers[domain.PlaceholderMatterID], "defaults are kept for undeclared identifiers")
}

func TestLoader_VersionTracksContent(t *testing.T) {
	l := NewLoader(domain.DefaultReviewFloor)
	a, err := l.Parse([]byte(practiceRules))
	require.NoError(t, err)
	b, err := l.Parse([]byte(practiceRules))
	require.NoError(t, err)
	c, err := l.Parse([]byte(practiceRules + "\n# tweak\n"))
	require.NoError(t, err)

	assert.Equal(t, a.Version, b.Version)
	assert.NotEqual(t, a.Version, c.Version)
}

func TestLoader_DefaultReviewFloor(t *testing.T) {
	rs, err := NewLoader(0.6).Parse([]byte(`
rules:
  - name: pdfs
    signal: extension
    extensions: [pdf]
    target: Documents/
    confidence: 0.5
`))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rs.ReviewFloor, 1e-9)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "rules: [\n  - name: x"},
		{"no rules", "review_floor: 0.7\n"},
		{"unknown key", "rules:\n  - name: a\n    signal: extension\n    extensions: [pdf]\n    target: X/\n    confidence: 0.5\n    weight: 3\n"},
		{"unknown signal", "rules:\n  - name: a\n    signal: colour\n    target: X/\n    confidence: 0.5\n"},
		{"conflicting synonyms", "rules:\n  - name: a\n    signal: filename\n    type: content\n    glob: '*'\n    target: X/\n    confidence: 0.5\n"},
		{"confidence out of range", "rules:\n  - name: a\n    signal: extension\n    extensions: [pdf]\n    target: X/\n    confidence: 1.5\n"},
		{"duplicate names", "rules:\n  - {name: a, signal: extension, extensions: [pdf], target: X/, confidence: 0.5}\n  - {name: a, signal: extension, extensions: [doc], target: Y/, confidence: 0.5}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(domain.DefaultReviewFloor).Parse([]byte(tt.content))
			assert.ErrorIs(t, err, domain.ErrRuleSet)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(domain.DefaultReviewFloor).Load(context.Background(), filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, domain.ErrRuleSet)
}
