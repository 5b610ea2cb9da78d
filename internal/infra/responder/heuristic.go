// File: internal/infra/responder/heuristic.go
package responder

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// Heuristic is the self-contained placeholder responder: it classifies the
// user text by keyword containment and picks a pseudo-random line from the
// matched category's bank, falling back to generic acknowledgments. It is
// deliberately not a dialogue system.
type Heuristic struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

var _ adapter.Responder = (*Heuristic)(nil)

func NewHeuristic(seed int64) *Heuristic {
	return &Heuristic{rnd: rand.New(rand.NewSource(seed))}
}

type bank struct {
	keywords []string
	lines    []string
}

var banks = []bank{
	{
		keywords: []string{"hello", "hi", "hey", "good morning", "good evening"},
		lines: []string{
			"Hello! How can I help you today?",
			"Hi there! What's on your mind?",
			"Hey! Good to see you.",
		},
	},
	{
		keywords: []string{"bye", "goodbye", "see you", "later"},
		lines: []string{
			"Goodbye! Come back any time.",
			"See you later!",
			"Take care!",
		},
	},
	{
		keywords: []string{"thanks", "thank you", "thx"},
		lines: []string{
			"You're welcome!",
			"Any time!",
			"Glad I could help.",
		},
	},
	{
		keywords: []string{"help", "how do i", "how to"},
		lines: []string{
			"I'll do my best to help. Can you tell me a bit more?",
			"Sure, what exactly are you trying to do?",
		},
	},
}

var questionLines = []string{
	"Good question. Let me think about that...",
	"Interesting question! Here's what I'd say: it depends.",
	"I'm not certain, but I'd start by breaking the problem down.",
}

var genericLines = []string{
	"I see. Tell me more.",
	"Got it. Anything else on your mind?",
	"Understood. How can I help with that?",
	"That's interesting. What would you like to do next?",
}

func (h *Heuristic) Reply(_ context.Context, text string) (string, error) {
	lower := strings.ToLower(text)
	for _, b := range banks {
		for _, kw := range b.keywords {
			if strings.Contains(lower, kw) {
				return h.pick(b.lines), nil
			}
		}
	}
	if strings.Contains(text, "?") {
		return h.pick(questionLines), nil
	}
	return h.pick(genericLines), nil
}

func (h *Heuristic) pick(lines []string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lines[h.rnd.Intn(len(lines))]
}
