// Package pdf extracts text and document info from PDF files using pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// DefaultMaxPages bounds how many pages are read for text.
const DefaultMaxPages = 20

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Extractor handles PDF documents.
type Extractor struct {
	maxPages int
}

// New creates a PDF extractor reading at most maxPages pages of text.
// A non-positive value uses DefaultMaxPages.
func New(maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Extractor{maxPages: maxPages}
}

// SupportedMediaTypes returns the media types this extractor handles.
func (e *Extractor) SupportedMediaTypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract reads the document info dictionary and the literal text shown on
// the first pages. Text drawn through embedded font encodings that do not
// map to ASCII comes out garbled; the near-duplicate signal tolerates that.
func (e *Extractor) Extract(ctx context.Context, raw *domain.RawFile) (*domain.Extraction, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(raw.Content), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: reading pdf: %v", domain.ErrInvalidInput, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("%w: validating pdf: %v", domain.ErrInvalidInput, err)
	}

	meta := map[string]string{
		domain.MetaPageCount: strconv.Itoa(pdfCtx.PageCount),
	}
	if v := strings.TrimSpace(pdfCtx.Title); v != "" {
		meta[domain.MetaTitle] = v
	}
	if v := strings.TrimSpace(pdfCtx.Author); v != "" {
		meta[domain.MetaAuthor] = v
	}

	var text strings.Builder
	pages := min(pdfCtx.PageCount, e.maxPages)
	for p := 1; p <= pages; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, p)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrInvalidInput, p, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrInvalidInput, p, err)
		}
		if s := TextFromContent(content); s != "" {
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString(s)
		}
	}

	return &domain.Extraction{Text: text.String(), Metadata: meta}, nil
}

// TextFromContent returns the strings shown by a page content stream.
// Only literal and hex string operands of Tj, TJ, ' and " are read;
// positioning operators that move to a new line emit a newline.
func TextFromContent(content []byte) string {
	var (
		out      strings.Builder
		operands []string
		line     strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			out.WriteString(s)
		}
		line.Reset()
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '(':
			s, n := readLiteral(content[i:])
			operands = append(operands, s)
			i += n
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			s, n := readHex(content[i:])
			operands = append(operands, s)
			i += n
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case isSpace(c) || c == '[' || c == ']':
			i++
		case isDelimiter(c):
			i++
		default:
			start := i
			for i < len(content) && !isSpace(content[i]) && !isDelimiter(content[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			switch op := string(content[start:i]); op {
			case "Tj", "TJ":
				for _, s := range operands {
					line.WriteString(s)
				}
				operands = operands[:0]
			case "'", `"`:
				flush()
				for _, s := range operands {
					line.WriteString(s)
				}
				operands = operands[:0]
			case "Td", "TD", "T*", "ET", "Tm":
				flush()
				operands = operands[:0]
			default:
				if !isNumber(op) {
					operands = operands[:0]
				}
			}
		}
	}
	flush()
	return out.String()
}

// readLiteral decodes a balanced (...) string and returns the bytes consumed.
func readLiteral(b []byte) (string, int) {
	var out strings.Builder
	depth := 0
	i := 0
	for i < len(b) {
		c := b[i]
		switch c {
		case '(':
			if depth > 0 {
				out.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out.String(), i + 1
			}
			out.WriteByte(c)
		case '\\':
			i++
			if i >= len(b) {
				return out.String(), i
			}
			switch e := b[i]; e {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				if e == '\r' && i+1 < len(b) && b[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					v, n := 0, 0
					for n < 3 && i < len(b) && b[i] >= '0' && b[i] <= '7' {
						v = v*8 + int(b[i]-'0')
						i++
						n++
					}
					i--
					out.WriteByte(byte(v))
				} else {
					out.WriteByte(e)
				}
			}
		default:
			out.WriteByte(c)
		}
		i++
	}
	return out.String(), i
}

// readHex decodes a <...> string and returns the bytes consumed.
func readHex(b []byte) (string, int) {
	end := bytes.IndexByte(b, '>')
	if end < 0 {
		return "", len(b)
	}
	var digits []byte
	for _, c := range b[1:end] {
		if !isSpace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var out strings.Builder
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return "", end + 1
		}
		if v >= 0x20 && v < 0x7f {
			out.WriteByte(byte(v))
		}
	}
	return out.String(), end + 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
