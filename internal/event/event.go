// Package event decodes streamed agent-runtime events and folds them into a reply.
package event

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags what an Event contributes to the reply.
type Kind int

const (
	// KindEmpty carries no usable text.
	KindEmpty Kind = iota
	// KindFinal carries a complete answer that replaces earlier ones.
	KindFinal
	// KindDelta carries an incremental fragment.
	KindDelta
)

func (k Kind) String() string {
	switch k {
	case KindFinal:
		return "final"
	case KindDelta:
		return "delta"
	default:
		return "empty"
	}
}

// Event is one streamed record after decoding.
type Event struct {
	Kind   Kind
	Text   string
	Author string
}

var (
	finalKeys = []string{"output", "final_output", "finalOutput"}
	deltaKeys = []string{"delta_text", "deltaText"}
)

// Decode converts a raw JSON event into an Event. It never fails: malformed
// input and unrecognized shapes decode to KindEmpty.
func Decode(raw []byte) Event {
	if !gjson.ValidBytes(raw) {
		return Event{}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Event{}
	}
	author := root.Get("author").String()

	for _, k := range finalKeys {
		if v := root.Get(k); v.Type == gjson.String {
			if t := strings.TrimSpace(v.String()); t != "" {
				return Event{Kind: KindFinal, Text: t, Author: author}
			}
		}
	}

	for _, k := range deltaKeys {
		if v := root.Get(k); v.Type == gjson.String && v.String() != "" {
			return Event{Kind: KindDelta, Text: v.String(), Author: author}
		}
	}

	if parts := root.Get("content.parts"); parts.IsArray() {
		// Partial events are token chunks; keep their whitespace intact.
		if root.Get("partial").Bool() {
			if t := partsText(parts, false); t != "" {
				return Event{Kind: KindDelta, Text: t, Author: author}
			}
		} else if t := partsText(parts, true); t != "" {
			return Event{Kind: KindFinal, Text: t, Author: author}
		}
	}

	if v := root.Get("text"); v.Type == gjson.String {
		if t := strings.TrimSpace(v.String()); t != "" {
			return Event{Kind: KindFinal, Text: t, Author: author}
		}
	}

	return Event{Author: author}
}

func partsText(parts gjson.Result, complete bool) string {
	var texts []string
	parts.ForEach(func(_, p gjson.Result) bool {
		v := p.Get("text")
		if v.Type != gjson.String {
			return true
		}
		t := v.String()
		if complete {
			t = strings.TrimSpace(t)
		}
		if t != "" {
			texts = append(texts, t)
		}
		return true
	})
	if complete {
		return strings.Join(texts, "\n")
	}
	return strings.Join(texts, "")
}
