package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/filer/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// drain collects every arrival and error until the producer finishes.
func drain(t *testing.T, arrivals <-chan domain.Arrival, errs <-chan error) ([]domain.Arrival, []error) {
	t.Helper()
	var got []domain.Arrival
	var gotErrs []error
	timeout := time.After(5 * time.Second)
	for arrivals != nil || errs != nil {
		select {
		case a, ok := <-arrivals:
			if !ok {
				arrivals = nil
				continue
			}
			got = append(got, a)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			gotErrs = append(gotErrs, err)
		case <-timeout:
			t.Fatal("producer did not finish")
		}
	}
	return got, gotErrs
}

func TestCrawler_Produce(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "report.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "clients", "acme", "letter.docx"), "docx")
	writeFile(t, filepath.Join(root, ".hidden"), "x")
	writeFile(t, filepath.Join(root, ".git", "config"), "x")
	writeFile(t, filepath.Join(root, "practice", "placed.pdf"), "placed")

	c := NewCrawler([]string{root}, filepath.Join(root, "practice"))
	assert.Equal(t, domain.ProducerScan, c.Kind())

	produced, produceErrs := c.Produce(context.Background())
	arrivals, errs := drain(t, produced, produceErrs)
	assert.Empty(t, errs)

	var paths []string
	for _, a := range arrivals {
		paths = append(paths, a.Descriptor.Path)
		assert.Equal(t, domain.ProducerScan, a.Kind)
		assert.False(t, a.ObservedAt.IsZero())
	}
	sort.Strings(paths)
	assert.Equal(t, []string{
		filepath.Join(root, "clients", "acme", "letter.docx"),
		filepath.Join(root, "report.pdf"),
	}, paths)

	for _, a := range arrivals {
		if filepath.Base(a.Descriptor.Path) == "report.pdf" {
			assert.Equal(t, int64(3), a.Descriptor.Size)
			assert.Equal(t, "application/pdf", a.Descriptor.MediaType)
		}
	}
}

func TestCrawler_MissingRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	c := NewCrawler([]string{filepath.Join(root, "missing"), root})
	produced, produceErrs := c.Produce(context.Background())
	arrivals, errs := drain(t, produced, produceErrs)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "root path error")
	assert.Len(t, arrivals, 1)
}

func TestCrawler_Cancelled(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, "f"+string(rune('a'+i))+".txt"), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	produced, produceErrs := NewCrawler([]string{root}).Produce(ctx)
	arrivals, _ := drain(t, produced, produceErrs)
	assert.Empty(t, arrivals)
}

func TestWatcher_EmitsCreatedFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher([]string{root})
	assert.Equal(t, domain.ProducerWatch, w.Kind())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	arrivals, _ := w.Produce(ctx)

	target := filepath.Join(root, "new-file.txt")
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(target, []byte("content"), 0o644)
	}()

	select {
	case a := <-arrivals:
		assert.Equal(t, target, a.Descriptor.Path)
		assert.Equal(t, domain.ProducerWatch, a.Kind)
		assert.Equal(t, "text/plain", a.Descriptor.MediaType)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for arrival")
	}
}

func TestWatcher_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	arrivals, errs := NewWatcher([]string{t.TempDir()}).Produce(ctx)
	cancel()
	_, gotErrs := drain(t, arrivals, errs)
	assert.Empty(t, gotErrs)
}

func TestWatcher_MissingRoot(t *testing.T) {
	arrivals, errs := NewWatcher([]string{"/non/existent/path"}).Produce(context.Background())
	got, gotErrs := drain(t, arrivals, errs)
	assert.Empty(t, got)
	require.Len(t, gotErrs, 1)
	assert.Contains(t, gotErrs[0].Error(), "root path error")
}

func TestHandleFsEvent(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "test.txt")
	writeFile(t, file, "content")
	hidden := filepath.Join(root, ".hidden.txt")
	writeFile(t, hidden, "hidden")
	dir := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(dir, 0o755))
	excludedFile := filepath.Join(root, "practice", "x.txt")
	writeFile(t, excludedFile, "x")

	w := NewWatcher([]string{root}, filepath.Join(root, "practice"))

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"create", file, fsnotify.Create, true},
		{"write", file, fsnotify.Write, true},
		{"write and chmod", file, fsnotify.Write | fsnotify.Chmod, true},
		{"chmod only", file, fsnotify.Chmod, false},
		{"remove", filepath.Join(root, "gone.txt"), fsnotify.Remove, false},
		{"rename", file, fsnotify.Rename, false},
		{"hidden", hidden, fsnotify.Create, false},
		{"directory", dir, fsnotify.Create, false},
		{"excluded", excludedFile, fsnotify.Create, false},
		{"vanished", filepath.Join(root, "vanished.txt"), fsnotify.Create, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := w.handleFsEvent(nil, fsnotify.Event{Name: tt.path, Op: tt.op})
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.path, a.Descriptor.Path)
			}
		})
	}
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.pdf", "application/pdf"},
		{"REPORT.PDF", "application/pdf"},
		{"letter.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"notes.md", "text/markdown"},
		{"msg.eml", "message/rfc822"},
		{"page.html", "text/html"},
		{"image.png", "image/png"},
		{"noext", "application/octet-stream"},
		{"file.zzzzunknown", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMediaType(tt.filename))
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".hidden", true},
		{"/root/.config/file.txt", true},
		{"dir/.git/config", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
		{"file.hidden", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isHidden(tt.path))
		})
	}
}
