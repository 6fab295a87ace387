package reply

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	model "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
)

// Decision records how a reply was chosen.
type Decision struct {
	CategoryID string
	Reply      string
	Fallback   bool
}

// Selector picks canned replies by first keyword-category match. Category
// order is significant: the first category with any matching keyword wins.
type Selector struct {
	categories []model.Category
	fallbacks  []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector builds a selector over the given catalog. A nil source seeds
// from the clock; pass a fixed source to make fallback picks reproducible.
func NewSelector(categories []model.Category, fallbacks []string, src rand.Source) *Selector {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1)
	}
	return &Selector{
		categories: append([]model.Category(nil), categories...),
		fallbacks:  append([]string(nil), fallbacks...),
		rng:        rand.New(src),
	}
}

// NewSelectorFromStore builds a selector over a reply catalog.
func NewSelectorFromStore(store model.Store, src rand.Source) *Selector {
	return NewSelector(store.List(), store.Fallbacks(), src)
}

// Reply returns the canned reply for text.
func (s *Selector) Reply(text string) string {
	return s.Decide(text).Reply
}

// Decide matches text against the categories and falls back to a random
// pool entry when none match.
func (s *Selector) Decide(text string) Decision {
	if category, ok := s.Match(text); ok {
		return Decision{CategoryID: category.ID, Reply: category.Reply}
	}
	if len(s.fallbacks) == 0 {
		return Decision{Fallback: true}
	}

	s.mu.Lock()
	idx := s.rng.IntN(len(s.fallbacks))
	s.mu.Unlock()

	return Decision{Reply: s.fallbacks[idx], Fallback: true}
}

// Match returns the first category with a keyword contained in text.
func (s *Selector) Match(text string) (model.Category, bool) {
	normalized := Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return model.Category{}, false
	}

	for _, category := range s.categories {
		for _, word := range category.Keywords {
			if word == "" {
				continue
			}
			if strings.Contains(normalized, Normalize(word)) {
				return category, true
			}
		}
	}
	return model.Category{}, false
}

// Normalize lowercases ASCII letters only; other runes pass through.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}
