// Package match provides a simple, deterministic, concurrency-safe in-memory
// similarity index over the recipient directory. Its job is to suggest likely
// directory entries for customer names that failed to resolve, so an operator
// can turn an unresolved source spelling into an alias instead of editing the
// source file.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with corporate-suffix stop words
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// directory entry's token set: score = |Q ∩ E| / |Q ∪ E|.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// Candidate is one suggested directory entry with its similarity score.
type Candidate struct {
	// RecipientID identifies the suggested recipient.
	RecipientID string `json:"recipient_id"`
	// Name is the directory spelling that matched: the recipient's canonical
	// name or one of its aliases.
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Index is the minimal interface implemented by the suggestion index.
type Index interface {
	TopK(name string, k int) []Candidate
}

// Option configures index construction.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
}

// defaultStopwords drops corporate boilerplate so "Acme LLC" and "Acme Inc"
// still land on the same tokens.
var defaultStopwords = []string{"inc", "llc", "ltd", "co", "corp", "company", "corporation", "the", "and", "of"}

func defaultConfig() config {
	m := make(map[string]struct{}, len(defaultStopwords))
	for _, w := range defaultStopwords {
		m[w] = struct{}{}
	}
	return config{stopwords: m}
}

// WithStopwords replaces the default stop-word set.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

type entry struct {
	recipientID string
	name        string
	tokens      map[string]struct{}
	tLen        int
}

type index struct {
	cfg     config
	entries []entry
}

// NewIndex builds an Index over every recipient name and alias. Group
// containers are included so a source name close to a group label surfaces
// the group.
func NewIndex(recipients []domain.Recipient, aliases []domain.RecipientAlias, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	byID := make(map[string]struct{}, len(recipients))
	entries := make([]entry, 0, len(recipients)+len(aliases))
	add := func(recipientID, name string) {
		toks := tokenize(name, cfg.stopwords)
		if len(toks) == 0 {
			return
		}
		entries = append(entries, entry{
			recipientID: recipientID,
			name:        strings.TrimSpace(name),
			tokens:      toks,
			tLen:        len(toks),
		})
	}

	for _, r := range recipients {
		byID[r.ID] = struct{}{}
		add(r.ID, r.Name)
	}
	for _, a := range aliases {
		if _, ok := byID[a.RecipientID]; ok {
			add(a.RecipientID, a.Alias)
		}
	}
	return &index{cfg: cfg, entries: entries}
}

// TopK returns up to k best-matching directory entries by Jaccard similarity,
// at most one per recipient (its best-scoring spelling).
func (i *index) TopK(name string, k int) []Candidate {
	if len(i.entries) == 0 || strings.TrimSpace(name) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(name, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		recipientID string
		name        string
		score       float64
		lenRunes    int
	}

	best := make(map[string]scored, len(i.entries))
	for _, e := range i.entries {
		over := overlap(qTokens, e.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+e.tLen-over)
		if score <= 0 {
			continue
		}
		s := scored{
			recipientID: e.recipientID,
			name:        e.name,
			score:       score,
			lenRunes:    utf8.RuneCountInString(e.name),
		}
		if prev, ok := best[e.recipientID]; !ok || s.score > prev.score {
			best[e.recipientID] = s
		}
	}
	if len(best) == 0 {
		return nil
	}

	buf := make([]scored, 0, len(best))
	for _, s := range best {
		buf = append(buf, s)
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].name < buf[b].name
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Candidate, k)
	for n := 0; n < k; n++ {
		out[n] = Candidate{RecipientID: buf[n].recipientID, Name: buf[n].name, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// tokenize lowercases and splits name into a token set. When stop-word
// filtering removes every token, the unfiltered set is used instead so names
// made entirely of boilerplate still match something.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		for _, w := range words {
			out[w] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
