// Package refusal detects content-policy declines in free-text model output.
package refusal

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/longregen/reprompt/internal/ports"
)

// DefaultMaxLength is the length (in runes) below which a response
// matching a refusal pattern is treated as a refusal. Longer responses are
// real content that happens to contain an apology.
const DefaultMaxLength = 100

// DefaultPatterns covers common English and Chinese refusal phrasings.
var DefaultPatterns = []string{
	`(?i)\bi'?m\s+sorry\b`,
	`(?i)\bi\s+am\s+sorry\b`,
	`(?i)\bsorry,?\s+(but\s+)?i\s+(can(no|')?t|am\s+unable)`,
	`(?i)\bi\s+(can(no|')?t|am\s+unable\s+to|won'?t)\s+(help|assist|analy[sz]e|process|describe|comply|generate|provide)`,
	`(?i)\bunable\s+to\s+(help|assist|analy[sz]e|process|describe)`,
	`(?i)\bi\s+apologi[sz]e\b`,
	`(?i)\bas\s+an\s+ai\b.*\b(can(no|')?t|unable)\b`,
	`抱歉`,
	`对不起`,
	`很遗憾`,
	`(无法|不能|没办法)(为你|为您|帮你|帮您)?(分析|帮助|协助|处理|识别|描述|生成|提供)`,
}

// Classifier matches short responses against refusal patterns.
type Classifier struct {
	patterns  []*regexp.Regexp
	maxLength int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPatterns replaces the pattern list.
func WithPatterns(patterns ...string) Option {
	return func(c *Classifier) {
		c.patterns = compile(patterns)
	}
}

// WithMaxLength sets the refusal length cutoff in runes.
func WithMaxLength(n int) Option {
	return func(c *Classifier) {
		c.maxLength = n
	}
}

// New creates a classifier with the default patterns.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		patterns:  compile(DefaultPatterns),
		maxLength: DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements ports.RefusalClassifier.
func (c *Classifier) Classify(text string) ports.Verdict {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) >= c.maxLength {
		return ports.Accepted
	}
	for _, p := range c.patterns {
		if p.MatchString(text) {
			return ports.Refused
		}
	}
	return ports.Accepted
}

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
