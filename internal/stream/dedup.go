package stream

import (
	"regexp"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// linkPrefix matches, from the start of the text, everything up to and
// including the last space that is followed by an http(s) link.
var linkPrefix = regexp.MustCompile(`(?is)^(.*) https?://(?:[a-z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-f][0-9a-f]))`)

// Normalize lowercases text and drops every non-ASCII character.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// ExtractKey returns the leading fragment of normalized text that precedes
// an embedded link, including the separating space.
func ExtractKey(normalized string) (string, bool) {
	loc := linkPrefix.FindStringSubmatchIndex(normalized)
	if loc == nil {
		return "", false
	}
	// loc[3] is the end of the leading text; keep the space after it.
	return normalized[:loc[3]+1], true
}

// Decision is the outcome of offering a key to the DedupEngine.
type Decision int

const (
	// DecisionRecordOnly: first key of the session, remembered but not stored.
	DecisionRecordOnly Decision = iota
	// DecisionDuplicate: key overlaps a seen key; the event is dropped.
	DecisionDuplicate
	// DecisionAccept: new key; the event is stored with its text rewritten.
	DecisionAccept
)

func (d Decision) String() string {
	switch d {
	case DecisionRecordOnly:
		return "record_only"
	case DecisionDuplicate:
		return "duplicate"
	default:
		return "accept"
	}
}

type keyStore interface {
	keys() []string
	add(key string)
	len() int
}

type sliceKeys struct {
	items []string
}

func (s *sliceKeys) keys() []string { return s.items }
func (s *sliceKeys) add(key string) { s.items = append(s.items, key) }
func (s *sliceKeys) len() int       { return len(s.items) }

// boundedKeys evicts the least recently added key once full.
type boundedKeys struct {
	cache *lru.Cache[string, struct{}]
}

func (b *boundedKeys) keys() []string { return b.cache.Keys() }
func (b *boundedKeys) add(key string) { b.cache.Add(key, struct{}{}) }
func (b *boundedKeys) len() int       { return b.cache.Len() }

// DedupEngine remembers the link-prefix keys seen during one session.
// It is not safe for concurrent use.
type DedupEngine struct {
	seen keyStore
}

// NewDedupEngine creates an engine. maxKeys <= 0 keeps every key for the
// life of the session; otherwise only the maxKeys most recent keys are kept.
func NewDedupEngine(maxKeys int) *DedupEngine {
	if maxKeys <= 0 {
		return &DedupEngine{seen: &sliceKeys{}}
	}
	cache, err := lru.New[string, struct{}](maxKeys)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &DedupEngine{seen: &boundedKeys{cache: cache}}
}

// IsDuplicate reports whether key contains, or is contained in, a seen key.
func (d *DedupEngine) IsDuplicate(key string) bool {
	for _, seen := range d.seen.keys() {
		if strings.Contains(seen, key) || strings.Contains(key, seen) {
			return true
		}
	}
	return false
}

// Decide classifies key and updates the seen set accordingly.
func (d *DedupEngine) Decide(key string) Decision {
	if d.seen.len() == 0 {
		d.seen.add(key)
		return DecisionRecordOnly
	}
	if d.IsDuplicate(key) {
		return DecisionDuplicate
	}
	d.seen.add(key)
	return DecisionAccept
}

// Len returns the number of keys held.
func (d *DedupEngine) Len() int {
	return d.seen.len()
}
