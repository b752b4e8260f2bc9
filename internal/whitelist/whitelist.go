package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether a sender is on the priority list. Entries are
// either bare domains ("example.com") or full addresses ("boss@example.com").
type Checker struct {
	domains   map[string]struct{}
	addresses map[string]struct{}
	logger    *zap.Logger
}

// NewChecker creates a new priority sender checker
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	c := &Checker{
		domains:   make(map[string]struct{}),
		addresses: make(map[string]struct{}),
		logger:    logger,
	}

	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.Contains(entry, "@"):
			c.addresses[entry] = struct{}{}
		default:
			c.domains[strings.TrimPrefix(entry, "@")] = struct{}{}
		}
	}

	if len(c.domains)+len(c.addresses) > 0 && logger != nil {
		logger.Info("Initialized priority senders",
			zap.Int("domains", len(c.domains)),
			zap.Int("addresses", len(c.addresses)))
	}

	return c
}

// IsWhitelisted checks if the sender address or its domain is listed
func (c *Checker) IsWhitelisted(from string) bool {
	from = strings.ToLower(strings.TrimSpace(from))
	at := strings.LastIndex(from, "@")
	if at <= 0 || at == len(from)-1 {
		return false
	}

	if _, ok := c.addresses[from]; ok {
		return true
	}

	domain := from[at+1:]
	if _, ok := c.domains[domain]; ok {
		if c.logger != nil {
			c.logger.Debug("Sender domain is a priority domain",
				zap.String("domain", domain),
				zap.String("email", from))
		}
		return true
	}

	return false
}
