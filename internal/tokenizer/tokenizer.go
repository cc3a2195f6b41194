package tokenizer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens in text.
type Counter interface {
	CountTokens(text string) (int, error)
	Name() string
}

const defaultEncoding = "cl100k_base"

// encodings maps deployment name prefixes to tiktoken encodings.
var encodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4.1":       "o200k_base",
	"o1":            "o200k_base",
	"o3":            "o200k_base",
	"gpt-4":         "cl100k_base",
	"gpt-35-turbo":  "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// EncodingFor returns the tiktoken encoding for a deployment. The longest
// matching prefix wins; unknown deployments use cl100k_base.
func EncodingFor(deployment string) string {
	prefixes := make([]string, 0, len(encodings))
	for p := range encodings {
		prefixes = append(prefixes, p)
	}
	slices.SortFunc(prefixes, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	for _, p := range prefixes {
		if strings.HasPrefix(deployment, p) {
			return encodings[p]
		}
	}
	return defaultEncoding
}

// Tiktoken counts tokens with a tiktoken encoding, loaded on first use.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktoken returns a counter for the deployment's encoding.
func NewTiktoken(deployment string) *Tiktoken {
	return &Tiktoken{encoding: EncodingFor(deployment)}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens implements Counter.
func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Name implements Counter.
func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// Estimator approximates token counts from character classes.
type Estimator struct{}

// CountTokens implements Counter. CJK runs at ~1.5 chars per token and
// everything else at ~4.
func (Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	return max(n, 1), nil
}

// Name implements Counter.
func (Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}

// fallbackCounter uses primary until it fails once, then secondary.
type fallbackCounter struct {
	primary, secondary Counter
	failed             atomic.Bool
}

// WithFallback returns a counter that switches to secondary permanently
// after primary returns an error.
func WithFallback(primary, secondary Counter) Counter {
	return &fallbackCounter{primary: primary, secondary: secondary}
}

func (f *fallbackCounter) CountTokens(text string) (int, error) {
	if !f.failed.Load() {
		n, err := f.primary.CountTokens(text)
		if err == nil {
			return n, nil
		}
		f.failed.Store(true)
	}
	return f.secondary.CountTokens(text)
}

func (f *fallbackCounter) Name() string {
	if f.failed.Load() {
		return f.secondary.Name()
	}
	return f.primary.Name()
}

// ForDeployment returns a tiktoken counter that falls back to Estimator.
func ForDeployment(deployment string) Counter {
	return WithFallback(NewTiktoken(deployment), Estimator{})
}

// BudgetError reports a prompt larger than its token budget.
type BudgetError struct {
	Tokens int
	Limit  int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("prompt uses %d tokens, budget is %d", e.Tokens, e.Limit)
}

// CheckBudget counts text and returns a *BudgetError when it exceeds
// limit. A non-positive limit disables the check.
func CheckBudget(c Counter, text string, limit int) (int, error) {
	n, err := c.CountTokens(text)
	if err != nil {
		return 0, err
	}
	if limit > 0 && n > limit {
		return n, &BudgetError{Tokens: n, Limit: limit}
	}
	return n, nil
}
