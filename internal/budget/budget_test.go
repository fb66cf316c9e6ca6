package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"abcd", 1},
		{strings.Repeat("a", 400), 100},
	}
	for _, tt := range tests {
		if got := Estimate(tt.in); got != tt.want {
			t.Errorf("Estimate(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage(strings.Repeat("s", 400)),
		schema.UserMessage(strings.Repeat("u", 40)),
	}
	got := EstimateMessages(msgs)
	// 2×4 overhead + role tokens + 100 + 10 content tokens.
	if got < 118 || got > 130 {
		t.Errorf("EstimateMessages = %d, want ~118-130", got)
	}
}

func TestTrimHistoryKeepsFit(t *testing.T) {
	fixed := []*schema.Message{schema.SystemMessage("system")}
	history := []*schema.Message{
		schema.UserMessage("first"),
		schema.AssistantMessage("second", nil),
	}

	got := TrimHistory(fixed, history, 1000)
	if len(got) != 2 {
		t.Errorf("trimmed %d messages from a fitting history", 2-len(got))
	}
}

func TestTrimHistoryDropsOldest(t *testing.T) {
	fixed := []*schema.Message{schema.SystemMessage(strings.Repeat("s", 400))}
	history := []*schema.Message{
		schema.UserMessage(strings.Repeat("a", 4000)),
		schema.AssistantMessage(strings.Repeat("b", 400), nil),
		schema.UserMessage(strings.Repeat("c", 400)),
	}

	got := TrimHistory(fixed, history, 400)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if !strings.HasPrefix(got[0].Content, "b") {
		t.Errorf("oldest message was not dropped first")
	}
}

func TestTrimHistoryEmptyWhenFixedExceeds(t *testing.T) {
	fixed := []*schema.Message{schema.SystemMessage(strings.Repeat("s", 40000))}
	history := []*schema.Message{schema.UserMessage("hi")}

	if got := TrimHistory(fixed, history, 100); len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}
