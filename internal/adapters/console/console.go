package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// Console prints notifications to a writer instead of a chat. It has no
// inbound side, so Start and Stop only log.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewConsole creates a new console frontend writing to out
func NewConsole(out io.Writer, logger *zap.Logger) *Console {
	return &Console{
		out:    out,
		logger: logger,
		now:    time.Now,
	}
}

// Send prints the notification and its buttons
func (c *Console) Send(ctx context.Context, n core.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=== %s ===\n", c.now().Format("2006-01-02 15:04:05"))
	sb.WriteString(n.Text)
	sb.WriteString("\n")
	for _, row := range n.Buttons {
		labels := make([]string, 0, len(row))
		for _, b := range row {
			labels = append(labels, fmt.Sprintf("[%s: %s]", b.Text, b.Data))
		}
		sb.WriteString(strings.Join(labels, " "))
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(c.out, sb.String()); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Start is a no-op for the console frontend
func (c *Console) Start(ctx context.Context) error {
	c.logger.Info("Console frontend started, notifications go to stdout")
	return nil
}

// Stop is a no-op for the console frontend
func (c *Console) Stop() error {
	return nil
}
