package core

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/mail-notifier/internal/utils"
	"go.uber.org/zap"
)

// FailureReason classifies why a score could not be produced
type FailureReason int

const (
	FailureNone FailureReason = iota
	// FailureTransport covers errors and timeouts talking to the model
	FailureTransport
	// FailureUnparseable means the reply held no number
	FailureUnparseable
)

// String returns the reason as a log-friendly name
func (f FailureReason) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureUnparseable:
		return "unparseable"
	default:
		return "unknown"
	}
}

// ErrNoScore is returned by ParseScore when the reply holds no number
var ErrNoScore = errors.New("no score in reply")

// ScoreResult carries either a score or the reason there is none
type ScoreResult struct {
	Score   float64
	Model   string
	Failure FailureReason
	Err     error
}

// Value returns the score, or the neutral score when scoring failed
func (r ScoreResult) Value() float64 {
	if r.Failure != FailureNone {
		return NeutralScore
	}
	return r.Score
}

// Failed reports whether the score is a fallback
func (r ScoreResult) Failed() bool {
	return r.Failure != FailureNone
}

const systemPrompt = "You rate how important an email is for its recipient. " +
	"Reply with a single number between 0 and 1 rounded to two decimals and nothing else, where 1 is maximally important. " +
	"0.7 and above is important: verification codes, account security notices, job offers, " +
	"personal messages that expect an answer. " +
	"Below 0.3 is unimportant: newsletters, promotions, social network digests such as Reddit. " +
	"Anything in between is uncertain. If you are not sure, answer 0.5."

var fewShot = []Exchange{
	{
		User:      "From: GitHub <noreply@github.com>\nSubject: [GitHub] Please verify your device\n\nVerification code: 481516",
		Assistant: "0.95",
	},
	{
		User:      "From: Reddit <noreply@redditmail.com>\nSubject: Trending on r/golang\n\nHere are the top posts this week",
		Assistant: "0.05",
	},
	{
		User:      "From: Parcel Service <info@parcel.example>\nSubject: Your order has shipped\n\nTrack your parcel online",
		Assistant: "0.5",
	},
}

var (
	thinkBlock  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	scoreNumber = regexp.MustCompile(`(\d+(?:[.,]\d+)?|[.,]\d+)\s*(%)?`)
)

// ParseScore extracts a score from a model reply. A number followed by
// a percent sign is read as a percentage. The result is clamped to [0, 1].
func ParseScore(reply string) (float64, error) {
	reply = thinkBlock.ReplaceAllString(reply, " ")

	m := scoreNumber.FindStringSubmatch(reply)
	if m == nil {
		return 0, ErrNoScore
	}

	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, ErrNoScore
	}
	if m[2] == "%" {
		v /= 100
	}

	return clamp(v), nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Classifier scores message text with a language model
type Classifier struct {
	llm           LLMClient
	logger        *zap.Logger
	maxInputChars int
	timeout       time.Duration
}

// NewClassifier creates a new classifier
func NewClassifier(llm LLMClient, logger *zap.Logger, maxInputChars int, timeout time.Duration) *Classifier {
	return &Classifier{
		llm:           llm,
		logger:        logger,
		maxInputChars: maxInputChars,
		timeout:       timeout,
	}
}

// Score returns the importance of text in [0, 1]. Empty text scores 0
// without calling the model. Failures are reported in the result, never
// as a panic or a separate error.
func (c *Classifier) Score(ctx context.Context, text string) ScoreResult {
	if strings.TrimSpace(text) == "" {
		return ScoreResult{Score: 0}
	}

	input := utils.TruncateRunes(text, c.maxInputChars)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	completion, err := c.llm.Complete(ctx, &Prompt{
		System:   systemPrompt,
		Examples: fewShot,
		Input:    input,
	})
	if err != nil {
		c.logger.Warn("Classification request failed", zap.Error(err))
		return ScoreResult{Failure: FailureTransport, Err: err}
	}

	score, err := ParseScore(completion.Text)
	if err != nil {
		c.logger.Warn("Unparseable classification reply",
			zap.String("reply", utils.TruncateRunes(completion.Text, 200)),
			zap.String("model", completion.Model))
		return ScoreResult{Model: completion.Model, Failure: FailureUnparseable, Err: err}
	}

	c.logger.Debug("Message scored",
		zap.Float64("score", score),
		zap.String("model", completion.Model))

	return ScoreResult{Score: score, Model: completion.Model}
}
