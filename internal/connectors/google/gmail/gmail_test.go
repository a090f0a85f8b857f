package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/filer/internal/connectors/google"
	"github.com/custodia-labs/filer/internal/core/domain"
)

type fakeAPI struct {
	mu         sync.Mutex
	messages   map[string]*gmail.Message
	pages      [][]string
	history    []string
	historyID  uint64
	historyErr error
	fetchErr   map[string]error
	fetched    []string
}

func (f *fakeAPI) ListMessages(_ context.Context, _ *Config, pageToken string) ([]string, string, error) {
	i := 0
	if pageToken != "" {
		i = int(pageToken[0] - '0')
	}
	next := ""
	if i+1 < len(f.pages) {
		next = string(rune('0' + i + 1))
	}
	if i >= len(f.pages) {
		return nil, "", nil
	}
	return f.pages[i], next, nil
}

func (f *fakeAPI) ListHistory(_ context.Context, _ uint64, _ string) ([]string, uint64, string, error) {
	if f.historyErr != nil {
		return nil, 0, "", f.historyErr
	}
	return f.history, f.historyID, "", nil
}

func (f *fakeAPI) HistoryID(context.Context) (uint64, error) {
	return f.historyID, nil
}

func (f *fakeAPI) RawMessage(_ context.Context, id string) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return m, nil
}

func rawMessage(id, subject string, labels ...string) *gmail.Message {
	eml := "From: jane@acme.com\r\nSubject: " + subject + "\r\n\r\nbody of " + id + "\r\n"
	return &gmail.Message{
		Id:           id,
		LabelIds:     labels,
		InternalDate: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(),
		Raw:          base64.URLEncoding.EncodeToString([]byte(eml)),
	}
}

func newTestPoller(api API, spool string) *Poller {
	cfg := DefaultConfig()
	cfg.SpoolDir = spool
	return NewPoller(api, cfg, google.NewQuota(google.QuotaConfig{UnitsPerSecond: 10000, Burst: 1000}))
}

func poll(t *testing.T, p *Poller) ([]domain.Arrival, []error) {
	t.Helper()
	arrivals, errs := p.Produce(context.Background())
	var got []domain.Arrival
	var gotErrs []error
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
		case <-time.After(5 * time.Second):
			t.Fatal("poll did not finish")
		}
	}
	return got, gotErrs
}

func TestPoller_FullListingSpoolsMessages(t *testing.T) {
	spool := filepath.Join(t.TempDir(), "mailbox")
	api := &fakeAPI{
		messages: map[string]*gmail.Message{
			"m1":   rawMessage("m1", "Engagement letter", "INBOX"),
			"m2":   rawMessage("m2", "Statement", "INBOX"),
			"spam": rawMessage("spam", "Win", "INBOX", "SPAM"),
		},
		pages:     [][]string{{"m1", "spam"}, {"m2", "m1"}},
		historyID: 42,
	}
	p := newTestPoller(api, spool)
	assert.Equal(t, domain.ProducerMailbox, p.Kind())

	arrivals, errs := poll(t, p)
	assert.Empty(t, errs)
	require.Len(t, arrivals, 2)

	var paths []string
	for _, a := range arrivals {
		assert.Equal(t, domain.ProducerMailbox, a.Kind)
		assert.Equal(t, "message/rfc822", a.Descriptor.MediaType)
		paths = append(paths, a.Descriptor.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{SpoolPath(spool, "m1"), SpoolPath(spool, "m2")}, paths)

	content, err := os.ReadFile(SpoolPath(spool, "m1"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Subject: Engagement letter")

	assert.Equal(t, uint64(42), loadCursor(spool).HistoryID)
}

func TestPoller_IncrementalUsesHistory(t *testing.T) {
	spool := t.TempDir()
	require.NoError(t, saveCursor(spool, &Cursor{Version: CursorVersion, HistoryID: 10}))

	api := &fakeAPI{
		messages: map[string]*gmail.Message{
			"m3": rawMessage("m3", "New", "INBOX"),
			"m4": rawMessage("m4", "Sent copy", "SENT"),
		},
		pages:     [][]string{{"old"}},
		history:   []string{"m3", "m4", "m3"},
		historyID: 12,
	}
	arrivals, errs := poll(t, newTestPoller(api, spool))
	assert.Empty(t, errs)
	require.Len(t, arrivals, 1, "SENT is outside the label filter")
	assert.Equal(t, SpoolPath(spool, "m3"), arrivals[0].Descriptor.Path)
	assert.NotContains(t, api.fetched, "old")
	assert.Equal(t, uint64(12), loadCursor(spool).HistoryID)
}

func TestPoller_ExpiredHistoryFallsBackToFullListing(t *testing.T) {
	spool := t.TempDir()
	require.NoError(t, saveCursor(spool, &Cursor{Version: CursorVersion, HistoryID: 1}))

	api := &fakeAPI{
		messages:   map[string]*gmail.Message{"m1": rawMessage("m1", "A", "INBOX")},
		pages:      [][]string{{"m1"}},
		historyErr: &googleapi.Error{Code: http.StatusNotFound},
		historyID:  99,
	}
	arrivals, errs := poll(t, newTestPoller(api, spool))
	assert.Empty(t, errs)
	assert.Len(t, arrivals, 1)
	assert.Equal(t, uint64(99), loadCursor(spool).HistoryID)
}

func TestPoller_SecondPollEmitsNothing(t *testing.T) {
	spool := t.TempDir()
	api := &fakeAPI{
		messages:  map[string]*gmail.Message{"m1": rawMessage("m1", "A", "INBOX")},
		pages:     [][]string{{"m1"}},
		historyID: 5,
	}
	p := newTestPoller(api, spool)
	first, _ := poll(t, p)
	require.Len(t, first, 1)

	api.history = []string{"m1"}
	second, errs := poll(t, p)
	assert.Empty(t, errs)
	assert.Empty(t, second)
}

func TestPoller_FailedFetchKeepsCursor(t *testing.T) {
	spool := t.TempDir()
	api := &fakeAPI{
		messages: map[string]*gmail.Message{
			"m1": rawMessage("m1", "A", "INBOX"),
			"m2": rawMessage("m2", "B", "INBOX"),
		},
		pages:     [][]string{{"m1", "m2", "gone"}},
		fetchErr:  map[string]error{"m2": &googleapi.Error{Code: http.StatusInternalServerError}},
		historyID: 7,
	}
	arrivals, errs := poll(t, newTestPoller(api, spool))
	assert.Len(t, arrivals, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "m2")
	assert.True(t, loadCursor(spool).IsEmpty())
}

func TestCursor_EncodeDecode(t *testing.T) {
	c := &Cursor{Version: CursorVersion, HistoryID: 123}
	got, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, got)

	empty, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = DecodeCursor("!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	future := (&Cursor{Version: CursorVersion + 1}).Encode()
	_, err = DecodeCursor(future)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestSpool(t *testing.T) {
	spool := t.TempDir()
	msg := rawMessage("abc/../x", "Hi", "INBOX")

	d, err := Spool(spool, msg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(spool, "abc____x.eml"), d.Path)
	assert.Equal(t, time.UnixMilli(msg.InternalDate), d.Modified)

	_, err = Spool(spool, msg)
	assert.ErrorIs(t, err, os.ErrExist)

	_, err = Spool(spool, &gmail.Message{Id: "bad", Raw: "%%%"})
	assert.Error(t, err)
}

func TestShouldSyncMessage(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, ShouldSyncMessage([]string{"INBOX"}, cfg))
	assert.False(t, ShouldSyncMessage([]string{"SENT"}, cfg))
	assert.False(t, ShouldSyncMessage([]string{"INBOX", "TRASH"}, cfg))

	cfg.IncludeSpamTrash = true
	assert.True(t, ShouldSyncMessage([]string{"INBOX", "TRASH"}, cfg))

	cfg.LabelIDs = nil
	assert.True(t, ShouldSyncMessage(nil, cfg))
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings(domain.MailboxSettings{Query: "has:attachment", SpoolDir: "/spool"})
	assert.Equal(t, []string{"INBOX"}, cfg.LabelIDs)
	assert.Equal(t, "has:attachment", cfg.Query)
	assert.Equal(t, "/spool", cfg.SpoolDir)
	assert.Equal(t, int64(100), cfg.MaxResults)
}

func TestNewServicePoller_RequiresToken(t *testing.T) {
	_, err := NewServicePoller(context.Background(), domain.MailboxSettings{
		SpoolDir:  t.TempDir(),
		TokenFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.ErrorIs(t, err, google.ErrNoToken)

	_, err = NewServicePoller(context.Background(), domain.MailboxSettings{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
