package event

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
)

const (
	// ApologyReply replaces text in which the model claims it cannot see an attached image.
	ApologyReply = "Sorry, I couldn't analyze the attached image. Please try again."
	// FallbackReply is returned when the stream produced no text at all.
	FallbackReply = "Sorry, I didn't receive any text back from the agent."
)

// DefaultBlindPattern matches replies where the model says it cannot see the image.
const DefaultBlindPattern = `(?i)\b(can'?t|cannot|can not|unable to)\s+see\s+(the\s+|any\s+|your\s+)?images?\b`

// Policy decides whether a reply should be discarded because the model
// ignored an attached image.
type Policy interface {
	Blind(text string) bool
}

// PatternPolicy flags text matching a regular expression.
type PatternPolicy struct {
	re *regexp.Regexp
}

// NewPatternPolicy compiles pattern into a Policy. An empty pattern uses DefaultBlindPattern.
func NewPatternPolicy(pattern string) (*PatternPolicy, error) {
	if pattern == "" {
		pattern = DefaultBlindPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile blind-image pattern: %w", err)
	}
	return &PatternPolicy{re: re}, nil
}

// Blind reports whether text matches the pattern.
func (p *PatternPolicy) Blind(text string) bool {
	return p.re.MatchString(text)
}

// NoopPolicy never flags anything.
type NoopPolicy struct{}

// Blind always returns false.
func (NoopPolicy) Blind(string) bool { return false }

// Aggregator folds events into a single reply.
type Aggregator struct {
	policy        Policy
	imageAttached bool

	lastComplete string
	deltas       []string
	sawBlind     bool
}

// NewAggregator returns an Aggregator. The policy is only consulted when
// imageAttached is true; a nil policy disables filtering.
func NewAggregator(policy Policy, imageAttached bool) *Aggregator {
	if policy == nil {
		policy = NoopPolicy{}
	}
	return &Aggregator{policy: policy, imageAttached: imageAttached}
}

// Add records one event.
func (a *Aggregator) Add(ev Event) {
	switch ev.Kind {
	case KindFinal:
		if ev.Text == "" || a.blind(ev.Text) {
			return
		}
		a.lastComplete = ev.Text
	case KindDelta:
		if ev.Text != "" {
			a.deltas = append(a.deltas, ev.Text)
		}
	}
}

// Reply resolves the accumulated state into the text returned to the user.
func (a *Aggregator) Reply() string {
	if a.lastComplete != "" {
		return a.lastComplete
	}
	if joined := strings.TrimSpace(strings.Join(a.deltas, "")); joined != "" {
		if a.blind(joined) {
			return ApologyReply
		}
		return joined
	}
	// Every final text was rejected as blind.
	if a.imageAttached && a.sawBlind {
		return ApologyReply
	}
	return FallbackReply
}

func (a *Aggregator) blind(text string) bool {
	if !a.imageAttached || !a.policy.Blind(text) {
		return false
	}
	a.sawBlind = true
	return true
}

// Fold drains seq into agg and returns the resolved reply. The first stream
// error aborts the fold.
func Fold(seq iter.Seq2[Event, error], agg *Aggregator) (string, error) {
	for ev, err := range seq {
		if err != nil {
			return "", err
		}
		agg.Add(ev)
	}
	return agg.Reply(), nil
}
