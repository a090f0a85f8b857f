package pdf

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// buildPDF writes a single-page PDF with correct xref offsets.
func buildPDF(content, title, author string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Title (%s) /Author (%s) >>", title, author),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 6 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	content := "BT /F1 12 Tf 72 720 Td (Form ADV Part 2A) Tj 0 -14 Td (Client ACME-1234) Tj ET"
	out, err := New(0).Extract(context.Background(), &domain.RawFile{
		Path:      "/in/adv.pdf",
		MediaType: "application/pdf",
		Content:   buildPDF(content, "Brochure", "Jane Smith"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Form ADV Part 2A\nClient ACME-1234", out.Text)
	assert.Equal(t, "1", out.Metadata[domain.MetaPageCount])
	assert.Equal(t, "Brochure", out.Metadata[domain.MetaTitle])
	assert.Equal(t, "Jane Smith", out.Metadata[domain.MetaAuthor])
}

func TestExtract_Invalid(t *testing.T) {
	_, err := New(0).Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(0).Extract(context.Background(), &domain.RawFile{Content: []byte("not a pdf")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTextFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "simple show",
			content: "BT (Hello) Tj ET",
			want:    "Hello",
		},
		{
			name:    "kerned array",
			content: "BT [(Quar) -20 (terly) 250 ( statement)] TJ ET",
			want:    "Quarterly statement",
		},
		{
			name:    "line moves",
			content: "BT (one) Tj T* (two) Tj 0 -12 Td (three) Tj ET",
			want:    "one\ntwo\nthree",
		},
		{
			name:    "quote operator starts a line",
			content: "BT (first) Tj (second) ' ET",
			want:    "first\nsecond",
		},
		{
			name:    "escapes and nesting",
			content: `BT (a \(b\) \101 (c)) Tj ET`,
			want:    "a (b) A (c)",
		},
		{
			name:    "hex string",
			content: "BT <48656C6C6F> Tj ET",
			want:    "Hello",
		},
		{
			name:    "comments and dictionaries ignored",
			content: "% note\n/Span << /MCID 0 >> BDC BT (kept) Tj ET EMC",
			want:    "kept",
		},
		{
			name:    "operands dropped by other operators",
			content: "(ignored) Tf BT (shown) Tj ET",
			want:    "shown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextFromContent([]byte(tt.content)))
		})
	}
}

func TestNew_DefaultPages(t *testing.T) {
	assert.Equal(t, DefaultMaxPages, New(-1).maxPages)
	assert.Equal(t, 3, New(3).maxPages)
	assert.Equal(t, []string{"application/pdf"}, New(0).SupportedMediaTypes())
}
