package responder

import (
	"context"
	"testing"
)

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}

func TestHeuristicCategories(t *testing.T) {
	h := NewHeuristic(1)
	ctx := context.Background()

	greeting, err := h.Reply(ctx, "Hello, anyone there?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !contains(banks[0].lines, greeting) {
		t.Fatalf("greeting reply %q not from the greeting bank", greeting)
	}

	thanks, _ := h.Reply(ctx, "ok thanks a lot")
	if !contains(banks[2].lines, thanks) {
		t.Fatalf("thanks reply %q not from the thanks bank", thanks)
	}

	question, _ := h.Reply(ctx, "what is the meaning of life?")
	if !contains(questionLines, question) {
		t.Fatalf("question reply %q not from the question bank", question)
	}

	generic, _ := h.Reply(ctx, "mmmm")
	if !contains(genericLines, generic) {
		t.Fatalf("generic reply %q not from the generic bank", generic)
	}
}

func TestHeuristicKeywordBeatsQuestionMark(t *testing.T) {
	h := NewHeuristic(7)
	// Contains both a greeting keyword and a question mark; keyword wins.
	reply, _ := h.Reply(context.Background(), "hi?")
	if !contains(banks[0].lines, reply) {
		t.Fatalf("reply %q not from the greeting bank", reply)
	}
}

func TestHeuristicNeverEmpty(t *testing.T) {
	h := NewHeuristic(42)
	for _, in := range []string{"", "x", "HELP ME", "goodbye friend", "???"} {
		reply, err := h.Reply(context.Background(), in)
		if err != nil || reply == "" {
			t.Fatalf("input %q: reply %q err %v", in, reply, err)
		}
	}
}
