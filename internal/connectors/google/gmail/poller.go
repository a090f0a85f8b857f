package gmail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/custodia-labs/filer/internal/connectors/google"
	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
	"github.com/custodia-labs/filer/internal/logger"
)

// maxRateLimitRetries bounds retries of one call after 429 responses.
const maxRateLimitRetries = 3

// API is the subset of the Gmail API the poller uses.
type API interface {
	// ListMessages returns one page of message IDs matching the config.
	ListMessages(ctx context.Context, cfg *Config, pageToken string) (ids []string, next string, err error)

	// ListHistory returns one page of IDs of messages added since startID
	// and the mailbox's current history ID.
	ListHistory(ctx context.Context, startID uint64, pageToken string) (ids []string, historyID uint64, next string, err error)

	// HistoryID returns the mailbox's current history ID.
	HistoryID(ctx context.Context) (uint64, error)

	// RawMessage fetches a message in raw format.
	RawMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// Ensure Poller implements the interface.
var _ driven.Producer = (*Poller)(nil)

// Poller lists new messages, spools each as an .eml file and emits the
// spooled file. One Produce call is one poll.
type Poller struct {
	api   API
	cfg   *Config
	quota *google.Quota
	now   func() time.Time
}

// NewPoller creates a poller over api.
func NewPoller(api API, cfg *Config, quota *google.Quota) *Poller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if quota == nil {
		quota = google.NewQuota(google.GmailQuota)
	}
	return &Poller{api: api, cfg: cfg, quota: quota, now: time.Now}
}

// NewServicePoller builds a poller backed by the Gmail API, authorised by
// the token file in the mailbox settings.
func NewServicePoller(ctx context.Context, s domain.MailboxSettings) (*Poller, error) {
	if s.SpoolDir == "" {
		return nil, fmt.Errorf("%w: mailbox spool directory is required", domain.ErrInvalidInput)
	}
	ts, err := google.NewFileTokenSource(ctx, google.OAuthConfig(s.ClientID, s.ClientSecret), s.TokenFile)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts), option.WithUserAgent("filer"))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return NewPoller(&serviceAPI{svc: svc}, ConfigFromSettings(s), nil), nil
}

// Name identifies the producer in logs.
func (p *Poller) Name() string {
	return "mailbox"
}

// Kind is stamped on every arrival.
func (p *Poller) Kind() domain.ProducerKind {
	return domain.ProducerMailbox
}

// Produce runs one poll. The cursor only advances when every listed
// message was spooled, so a failed message is retried next poll.
func (p *Poller) Produce(ctx context.Context) (<-chan domain.Arrival, <-chan error) {
	arrivals := make(chan domain.Arrival)
	errs := make(chan error, 16)

	go func() {
		defer close(arrivals)
		defer close(errs)

		send := func(err error) {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		}

		if err := os.MkdirAll(p.cfg.SpoolDir, 0o700); err != nil {
			send(fmt.Errorf("creating spool directory: %w", err))
			return
		}

		cursor := loadCursor(p.cfg.SpoolDir)
		ids, historyID, err := p.list(ctx, cursor)
		if err != nil {
			send(err)
			return
		}

		failed := false
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			if isSpooled(p.cfg.SpoolDir, id) {
				continue
			}
			arrival, ok, err := p.fetch(ctx, id)
			if err != nil {
				failed = true
				send(err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case arrivals <- arrival:
			case <-ctx.Done():
				return
			}
		}

		if failed || ctx.Err() != nil {
			return
		}
		cursor.HistoryID = historyID
		if err := saveCursor(p.cfg.SpoolDir, cursor); err != nil {
			send(err)
		}
	}()

	return arrivals, errs
}

// list returns the IDs to fetch and the history ID to resume from.
func (p *Poller) list(ctx context.Context, cursor *Cursor) ([]string, uint64, error) {
	if !cursor.IsEmpty() {
		ids, historyID, err := p.listHistory(ctx, cursor.HistoryID)
		if err == nil {
			return ids, historyID, nil
		}
		if !google.IsHistoryIDExpired(err) {
			return nil, 0, fmt.Errorf("listing history: %w", google.WrapError(err))
		}
		logger.Info("mailbox history %d expired, listing all messages", cursor.HistoryID)
	}
	return p.listAll(ctx)
}

func (p *Poller) listAll(ctx context.Context) ([]string, uint64, error) {
	// Take the history ID first so messages arriving mid-listing are
	// picked up by the next poll.
	var historyID uint64
	err := p.call(ctx, google.CostProfile, func(ctx context.Context) error {
		var err error
		historyID, err = p.api.HistoryID(ctx)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reading mailbox profile: %w", google.WrapError(err))
	}

	var ids []string
	pageToken := ""
	for {
		var page []string
		var next string
		err := p.call(ctx, google.CostMessageList, func(ctx context.Context) error {
			var err error
			page, next, err = p.api.ListMessages(ctx, p.cfg, pageToken)
			return err
		})
		if err != nil {
			return nil, 0, fmt.Errorf("listing messages: %w", google.WrapError(err))
		}
		ids = append(ids, page...)
		if next == "" {
			return unique(ids), historyID, nil
		}
		pageToken = next
	}
}

func (p *Poller) listHistory(ctx context.Context, start uint64) ([]string, uint64, error) {
	var ids []string
	latest := start
	pageToken := ""
	for {
		var page []string
		var historyID uint64
		var next string
		err := p.call(ctx, google.CostHistoryList, func(ctx context.Context) error {
			var err error
			page, historyID, next, err = p.api.ListHistory(ctx, start, pageToken)
			return err
		})
		if err != nil {
			return nil, 0, err
		}
		ids = append(ids, page...)
		if historyID > latest {
			latest = historyID
		}
		if next == "" {
			return unique(ids), latest, nil
		}
		pageToken = next
	}
}

// fetch downloads and spools one message. ok is false for messages the
// label filter rejects or that another poll already spooled.
func (p *Poller) fetch(ctx context.Context, id string) (domain.Arrival, bool, error) {
	var msg *gmail.Message
	err := p.call(ctx, google.CostMessageGet, func(ctx context.Context) error {
		var err error
		msg, err = p.api.RawMessage(ctx, id)
		return err
	})
	if err != nil {
		if google.IsNotFound(err) {
			// Deleted between listing and fetching.
			return domain.Arrival{}, false, nil
		}
		return domain.Arrival{}, false, fmt.Errorf("fetching message %s: %w", id, google.WrapError(err))
	}
	if !ShouldSyncMessage(msg.LabelIds, p.cfg) {
		return domain.Arrival{}, false, nil
	}

	d, err := Spool(p.cfg.SpoolDir, msg)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.Arrival{}, false, nil
		}
		return domain.Arrival{}, false, err
	}
	logger.Debug("spooled message %s to %s", id, d.Path)
	return domain.Arrival{Kind: domain.ProducerMailbox, Descriptor: d, ObservedAt: p.now()}, true, nil
}

// call spends cost quota units per attempt and retries 429 responses.
func (p *Poller) call(ctx context.Context, cost int, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if werr := p.quota.Spend(ctx, cost); werr != nil {
			return werr
		}
		err = fn(ctx)
		if err == nil || !google.IsRateLimited(err) {
			return err
		}
		p.quota.Pause(0)
	}
	return err
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// serviceAPI implements API with the Gmail client.
type serviceAPI struct {
	svc *gmail.Service
}

func (s *serviceAPI) ListMessages(ctx context.Context, cfg *Config, pageToken string) ([]string, string, error) {
	call := s.svc.Users.Messages.List("me").
		MaxResults(cfg.MaxResults).
		IncludeSpamTrash(cfg.IncludeSpamTrash).
		Context(ctx)
	if cfg.Query != "" {
		call = call.Q(cfg.Query)
	}
	if len(cfg.LabelIDs) > 0 {
		call = call.LabelIds(cfg.LabelIDs...)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

func (s *serviceAPI) ListHistory(ctx context.Context, startID uint64, pageToken string) ([]string, uint64, string, error) {
	call := s.svc.Users.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, 0, "", err
	}
	var ids []string
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				ids = append(ids, added.Message.Id)
			}
		}
	}
	return ids, resp.HistoryId, resp.NextPageToken, nil
}

func (s *serviceAPI) HistoryID(ctx context.Context) (uint64, error) {
	profile, err := s.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return profile.HistoryId, nil
}

func (s *serviceAPI) RawMessage(ctx context.Context, id string) (*gmail.Message, error) {
	return s.svc.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
}
