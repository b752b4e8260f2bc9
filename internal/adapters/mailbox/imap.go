package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// IMAPMailbox reads one folder of an IMAP account. Every fetch opens a
// fresh session and the folder is selected read-only.
type IMAPMailbox struct {
	cfg    config.IMAPConfig
	parser *Parser
	logger *zap.Logger
}

// NewIMAPMailbox creates a new IMAP mailbox
func NewIMAPMailbox(cfg config.IMAPConfig, parser *Parser, logger *zap.Logger) *IMAPMailbox {
	return &IMAPMailbox{
		cfg:    cfg,
		parser: parser,
		logger: logger.With(zap.String("mailbox", cfg.Username+"@"+cfg.Host+"/"+cfg.Folder)),
	}
}

// FetchSince returns the messages with a UID above cursor. MaxUID is the
// highest UID in the folder, whether or not that message parsed.
func (m *IMAPMailbox) FetchSince(ctx context.Context, cursor uint32) core.FetchResult {
	records, maxUID, err := m.fetchSince(ctx, cursor)
	if err != nil {
		return core.FetchResult{Err: err}
	}
	return core.FetchResult{Records: records, MaxUID: maxUID}
}

func (m *IMAPMailbox) fetchSince(ctx context.Context, cursor uint32) ([]core.EmailRecord, uint32, error) {
	client, release, err := m.connect(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	if _, err := client.Select(m.cfg.Folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, 0, fmt.Errorf("failed to select %s: %w", m.cfg.Folder, err)
	}

	// An empty criteria is SEARCH ALL
	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		m.logger.Debug("Mailbox is empty")
		return nil, 0, nil
	}

	var maxUID imap.UID
	var newUIDs []imap.UID
	for _, uid := range uids {
		if uid > maxUID {
			maxUID = uid
		}
		if uint32(uid) > cursor {
			newUIDs = append(newUIDs, uid)
		}
	}

	if uint32(maxUID) <= cursor {
		m.logger.Debug("No new messages",
			zap.Uint32("cursor", cursor),
			zap.Uint32("max_uid", uint32(maxUID)))
		return nil, uint32(maxUID), nil
	}

	m.logger.Info("Found new messages",
		zap.Uint32("cursor", cursor),
		zap.Uint32("max_uid", uint32(maxUID)),
		zap.Int("count", len(newUIDs)))

	records, err := m.fetchRecords(client, newUIDs)
	if err != nil {
		return nil, 0, err
	}
	return records, uint32(maxUID), nil
}

func (m *IMAPMailbox) fetchRecords(client *imapclient.Client, uids []imap.UID) ([]core.EmailRecord, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	records := make([]core.EmailRecord, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			m.logger.Debug("Failed to collect message", zap.Error(err))
			continue
		}

		uid := uint32(buf.UID)
		raw := buf.FindBodySection(bodySection)
		if buf.Envelope == nil || raw == nil {
			m.logger.Debug("Dropping message without envelope or body", zap.Uint32("uid", uid))
			continue
		}

		rec, err := m.parser.Parse(uid, raw)
		if err != nil {
			m.logger.Debug("Dropping unparseable message", zap.Uint32("uid", uid), zap.Error(err))
			continue
		}
		fillFromEnvelope(&rec, buf.Envelope)

		records = append(records, rec)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].UID < records[j].UID })
	return records, nil
}

// fillFromEnvelope completes sender fields the headers did not provide
func fillFromEnvelope(rec *core.EmailRecord, env *imap.Envelope) {
	if len(env.From) == 0 {
		return
	}
	from := env.From[0]
	if rec.SenderAddress == "" {
		rec.SenderAddress = from.Addr()
	}
	if rec.Sender == "" {
		rec.Sender = from.Addr()
		if from.Name != "" {
			rec.Sender = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
		}
	}
}

// connect dials and authenticates. The connection gets one deadline for
// the whole session and is closed if ctx ends first. release logs out and
// closes the connection.
func (m *IMAPMailbox) connect(ctx context.Context) (client *imapclient.Client, release func(), err error) {
	addr := m.cfg.Address()

	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if m.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	opts := &imapclient.Options{
		WordDecoder: newWordDecoder(),
		TLSConfig:   &tls.Config{ServerName: m.cfg.Host},
	}

	switch m.cfg.Security {
	case "starttls":
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to start TLS with %s: %w", addr, err)
		}
	case "none":
		client = imapclient.New(conn, opts)
	default:
		client = imapclient.New(tls.Client(conn, opts.TLSConfig), opts)
	}

	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to authenticate as %s: %w", m.cfg.Username, err)
	}

	release = func() {
		stop()
		_ = client.Logout().Wait()
		_ = client.Close()
	}
	return client, release, nil
}
