package governance

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrDenied wraps the reason an answer was rejected.
var ErrDenied = errors.New("answer rejected")

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Result contains the outcome of a policy evaluation. Text is the answer
// as it should be stored when allowed.
type Result struct {
	Effect Effect
	Reason string
	Text   string
}

// AnswerPolicy screens free-text answers before they end up in a public
// announcement: markup is stripped and answers matching a denied pattern
// are refused.
type AnswerPolicy struct {
	DeniedRegex []*regexp.Regexp

	sanitizer *bluemonday.Policy
}

func NewAnswerPolicy() *AnswerPolicy {
	return &AnswerPolicy{
		DeniedRegex: make([]*regexp.Regexp, 0),
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// NewDefaultAnswerPolicy refuses mass mentions on top of patterns.
func NewDefaultAnswerPolicy(patterns ...string) (*AnswerPolicy, error) {
	p := NewAnswerPolicy()
	if err := p.DenyPattern(`@(everyone|here)\b`); err != nil {
		return nil, err
	}
	for _, pattern := range patterns {
		if err := p.DenyPattern(pattern); err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
	}
	return p, nil
}

func (p *AnswerPolicy) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.DeniedRegex = append(p.DeniedRegex, re)
	return nil
}

func (p *AnswerPolicy) Evaluate(ctx context.Context, text string) (Result, error) {
	clean := strings.TrimSpace(html.UnescapeString(p.sanitizer.Sanitize(text)))
	if clean == "" {
		return Result{
			Effect: EffectDeny,
			Reason: "the answer is empty once markup is removed",
		}, nil
	}

	for _, re := range p.DeniedRegex {
		if re.MatchString(clean) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("the answer matches a restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
		Text:   clean,
	}, nil
}

// Review implements wizard.AnswerFilter.
func (p *AnswerPolicy) Review(ctx context.Context, text string) (string, error) {
	res, err := p.Evaluate(ctx, text)
	if err != nil {
		return "", err
	}
	if res.Effect == EffectDeny {
		return "", fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return res.Text, nil
}
