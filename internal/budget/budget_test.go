package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.SystemMessage("be brief"),  // 4 + Estimate("system")=1 + 2 = 7
		schema.UserMessage("hello world"), // 4 + Estimate("user")=1 + 2 = 7
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_FitBlocks(t *testing.T) {
	t.Parallel()

	block := strings.Repeat("x", 400) // 100 tokens
	blocks := []string{block, block, block}

	cases := []struct {
		name  string
		fixed int
		max   int
		want  int
	}{
		{"all fit", 0, 1000, 3},
		{"exact fit", 0, 300, 3},
		{"drops tail", 50, 300, 2},
		{"keeps first when over budget", 1000, 300, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FitBlocks(tc.fixed, blocks, tc.max); got != tc.want {
				t.Errorf("FitBlocks(%d, 3 blocks, %d) = %d, want %d", tc.fixed, tc.max, got, tc.want)
			}
		})
	}
}

func Test_FitBlocks_Empty(t *testing.T) {
	t.Parallel()
	if got := FitBlocks(0, nil, DefaultMaxContextTokens); got != 0 {
		t.Errorf("FitBlocks(nil) = %d, want 0", got)
	}
}
