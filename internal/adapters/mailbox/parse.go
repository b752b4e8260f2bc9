package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/mail-notifier/internal/core"
	"github.com/mikey/mail-notifier/internal/utils"
	"go.uber.org/zap"
)

// NoSubject replaces an empty subject line
const NoSubject = "(no subject)"

// DisplayLimit is the number of body characters kept for display
const DisplayLimit = 300

// maxPartSize caps how much of one MIME part is read
const maxPartSize = 1 << 20

// newWordDecoder returns a header decoder that never fails on an unknown
// charset: such words are passed through as raw bytes.
func newWordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{
		CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
			r, err := charset.Reader(cs, input)
			if err != nil {
				return input, nil
			}
			return r, nil
		},
	}
}

// Parser turns raw RFC 5322 messages into records
type Parser struct {
	text   *utils.TextProcessor
	words  *mime.WordDecoder
	logger *zap.Logger
}

// NewParser creates a new message parser
func NewParser(text *utils.TextProcessor, logger *zap.Logger) *Parser {
	return &Parser{
		text:   text,
		words:  newWordDecoder(),
		logger: logger,
	}
}

// Parse builds a record from a raw message
func (p *Parser) Parse(uid uint32, raw []byte) (core.EmailRecord, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !recoverable(err) {
		return core.EmailRecord{}, fmt.Errorf("failed to parse message %d: %w", uid, err)
	}

	header := mail.Header{Header: entity.Header}

	rec := core.EmailRecord{
		UID:       uid,
		Sender:    p.text.Normalize(p.decodeHeader(header.Get("From"))),
		Subject:   p.text.Normalize(p.decodeHeader(header.Get("Subject"))),
		Body:      p.text.ProcessBody(p.textBody(uid, entity)),
		RawLength: len(raw),
	}
	if rec.Subject == "" {
		rec.Subject = NoSubject
	}
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		rec.SenderAddress = strings.ToLower(addrs[0].Address)
	} else if addr, err := mail.ParseAddress(rec.Sender); err == nil {
		rec.SenderAddress = strings.ToLower(addr.Address)
	}

	return rec, nil
}

// decodeHeader decodes encoded words, keeping the raw value if decoding fails
func (p *Parser) decodeHeader(v string) string {
	decoded, err := p.words.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// textBody returns the first inline text/plain part of a multipart
// message, or the whole body of a single-part message
func (p *Parser) textBody(uid uint32, e *message.Entity) string {
	mr := e.MultipartReader()
	if mr == nil {
		return readPart(e.Body)
	}

	body, ok := firstPlainText(mr)
	if !ok {
		p.logger.Debug("No plain text part", zap.Uint32("uid", uid))
	}
	return body
}

func firstPlainText(mr message.MultipartReader) (string, bool) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if part == nil || (err != nil && !recoverable(err)) {
			return "", false
		}

		if disp, _, _ := part.Header.ContentDisposition(); disp == "attachment" {
			continue
		}

		if sub := part.MultipartReader(); sub != nil {
			if body, ok := firstPlainText(sub); ok {
				return body, true
			}
			continue
		}

		if ct, _, _ := part.Header.ContentType(); ct == "text/plain" || ct == "" {
			return readPart(part.Body), true
		}
	}
}

func readPart(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxPartSize))
	if err != nil && len(data) == 0 {
		return ""
	}
	return string(data)
}

// recoverable reports errors after which the entity is still usable with
// its raw, undecoded body
func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
