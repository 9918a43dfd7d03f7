package ai

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"unicode"
)

type Category string

const (
	CategoryGreeting Category = "greeting"
	CategoryQuestion Category = "question"
	CategoryProject  Category = "project"
	CategoryDefault  Category = "default"
)

type rule struct {
	category Category
	words    []string // whole words
	prefixes []string // word prefixes, "build" matches "building"
	marks    []string // raw substrings
}

// checked in order, first match wins
var rules = []rule{
	{category: CategoryGreeting, words: []string{"hello", "hi", "hey"}},
	{category: CategoryQuestion, words: []string{"how", "what", "why"}, marks: []string{"?"}},
	{category: CategoryProject, prefixes: []string{"project", "build", "develop"}},
}

var replies = map[Category][]string{
	CategoryGreeting: {
		"Hello! :wave:",
		"Hi there! :smile:",
		"Hey! How can I help? :thumbs_up:",
	},
	CategoryQuestion: {
		"That's interesting! Can you tell me more?",
		"Great question! :thinking:",
		"Let me help you with that :rocket:",
	},
	CategoryProject: {
		"That sounds like an amazing project! :star:",
		"I love working on projects like this :fire:",
		"Let's build something awesome! :rocket:",
	},
	CategoryDefault: {
		"That sounds great! :thumbs_up:",
		"Can you tell me more about that?",
		"I'm working on it! :fire:",
		"Absolutely! Let's do it :rocket:",
		"Interesting point! :star:",
		"I'll help you with that :heart:",
	},
}

// Replies returns a copy of the fixed reply set of a category.
func Replies(c Category) []string {
	return append([]string(nil), replies[c]...)
}

// Classify returns the first category whose keywords occur in text.
func Classify(text string) Category {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, r := range rules {
		if r.matches(lower, words) {
			return r.category
		}
	}
	return CategoryDefault
}

func (r rule) matches(lower string, words []string) bool {
	for _, m := range r.marks {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, w := range words {
		for _, k := range r.words {
			if w == k {
				return true
			}
		}
		for _, p := range r.prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}

// GenerateReply picks a reply uniformly from the category matching userText.
// Callers guarantee userText is not blank.
func GenerateReply(rng *rand.Rand, userText string) string {
	set := replies[Classify(userText)]
	return set[rng.Intn(len(set))]
}

// KeywordProvider answers the latest user message with GenerateReply.
type KeywordProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewKeywordProvider(rng *rand.Rand) *KeywordProvider {
	return &KeywordProvider{rng: rng}
}

func (p *KeywordProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		if strings.TrimSpace(messages[i].Content) == "" {
			break
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return GenerateReply(p.rng, messages[i].Content), nil
	}
	return "", errors.New("keyword: no user message to answer")
}
