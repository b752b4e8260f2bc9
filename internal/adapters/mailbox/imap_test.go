package mailbox

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/mikey/mail-notifier/internal/config"
	"github.com/mikey/mail-notifier/internal/utils"
	"go.uber.org/zap"
)

const (
	imapTestUser = "testuser"
	imapTestPass = "testpass"
)

// newTestIMAPServer starts an in-memory IMAP server and returns its address
func newTestIMAPServer(t *testing.T) string {
	t.Helper()

	memSrv := imapmemserver.New()
	user := imapmemserver.NewUser(imapTestUser, imapTestPass)
	if err := user.Create("INBOX", nil); err != nil {
		t.Fatal(err)
	}
	memSrv.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(_ *imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memSrv.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
		},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

// appendTestMail stores a raw message in INBOX through a plain client
func appendTestMail(t *testing.T, addr, rawMsg string) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	c := imapclient.New(conn, nil)
	defer c.Close()

	if err := c.Login(imapTestUser, imapTestPass).Wait(); err != nil {
		t.Fatal(err)
	}

	appendCmd := c.Append("INBOX", int64(len(rawMsg)), nil)
	if _, err := appendCmd.Write([]byte(rawMsg)); err != nil {
		t.Fatal(err)
	}
	if err := appendCmd.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := appendCmd.Wait(); err != nil {
		t.Fatal(err)
	}
}

func newTestMailbox(t *testing.T, addr, password string) *IMAPMailbox {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.IMAPConfig{
		Host:     host,
		Port:     port,
		Username: imapTestUser,
		Password: password,
		Folder:   "INBOX",
		Security: "none",
		Timeout:  5 * time.Second,
	}
	parser := NewParser(utils.NewTextProcessor(zap.NewNop(), DisplayLimit), zap.NewNop())
	return NewIMAPMailbox(cfg, parser, zap.NewNop())
}

func testMessage(n int) string {
	return "From: Sender " + strconv.Itoa(n) + " <sender" + strconv.Itoa(n) + "@example.com>\r\n" +
		"To: testuser@example.com\r\n" +
		"Subject: Message " + strconv.Itoa(n) + "\r\n" +
		"Date: Mon, 01 Jan 2024 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Body of message " + strconv.Itoa(n) + ".\r\n"
}

func TestFetchSinceScenario(t *testing.T) {
	addr := newTestIMAPServer(t)
	for i := 1; i <= 3; i++ {
		appendTestMail(t, addr, testMessage(i))
	}
	mb := newTestMailbox(t, addr, imapTestPass)
	ctx := context.Background()

	res := mb.FetchSince(ctx, 0)
	if res.Err != nil {
		t.Fatalf("FetchSince(0) error: %v", res.Err)
	}
	if len(res.Records) != 3 || res.MaxUID != 3 {
		t.Fatalf("FetchSince(0) = %d records, max %d", len(res.Records), res.MaxUID)
	}
	for i, rec := range res.Records {
		n := i + 1
		if rec.UID != uint32(n) {
			t.Errorf("record %d uid = %d", i, rec.UID)
		}
		if rec.Subject != "Message "+strconv.Itoa(n) {
			t.Errorf("record %d subject = %q", i, rec.Subject)
		}
		if rec.SenderAddress != "sender"+strconv.Itoa(n)+"@example.com" {
			t.Errorf("record %d address = %q", i, rec.SenderAddress)
		}
		if !strings.Contains(rec.Sender, "Sender "+strconv.Itoa(n)) {
			t.Errorf("record %d sender = %q", i, rec.Sender)
		}
		if rec.Body != "Body of message "+strconv.Itoa(n)+"." {
			t.Errorf("record %d body = %q", i, rec.Body)
		}
		if rec.RawLength == 0 {
			t.Errorf("record %d has no raw length", i)
		}
	}

	for i := 0; i < 2; i++ {
		res = mb.FetchSince(ctx, 3)
		if res.Err != nil || len(res.Records) != 0 || res.MaxUID != 3 {
			t.Errorf("FetchSince(3) = %d records, max %d, err %v", len(res.Records), res.MaxUID, res.Err)
		}
	}

	appendTestMail(t, addr, testMessage(4))
	res = mb.FetchSince(ctx, 3)
	if len(res.Records) != 1 || res.Records[0].UID != 4 || res.MaxUID != 4 {
		t.Errorf("FetchSince(3) after new mail = %+v", res)
	}
}

func TestFetchSinceEmptyMailbox(t *testing.T) {
	addr := newTestIMAPServer(t)
	mb := newTestMailbox(t, addr, imapTestPass)

	res := mb.FetchSince(context.Background(), 0)
	if res.Err != nil || len(res.Records) != 0 || res.MaxUID != 0 {
		t.Errorf("empty mailbox = %+v", res)
	}
}

func TestFetchSinceBadCredentials(t *testing.T) {
	addr := newTestIMAPServer(t)
	appendTestMail(t, addr, testMessage(1))
	mb := newTestMailbox(t, addr, "wrong")

	res := mb.FetchSince(context.Background(), 0)
	if res.Err == nil {
		t.Fatal("expected an authentication error")
	}
	if len(res.Records) != 0 {
		t.Errorf("records = %d", len(res.Records))
	}
}

func TestFetchSinceUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	res := newTestMailbox(t, addr, imapTestPass).FetchSince(context.Background(), 0)
	if res.Err == nil {
		t.Fatal("expected a connection error")
	}
}
