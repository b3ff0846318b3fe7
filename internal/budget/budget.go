// Package budget estimates prompt sizes and trims retrieved context to fit
// the generation model's input window. Backends use different tokenizers,
// so estimation is a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message token overhead most APIs charge.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget for one answer
	// prompt. Gemini and GPT-4 class models accept far more; the limit keeps
	// smaller local models usable. Override via retrieval.Config.
	DefaultMaxContextTokens = 24000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitBlocks returns how many leading blocks fit alongside fixedTokens
// within maxTokens. Blocks are ranked, so trimming drops from the tail.
// The first block is always kept when there is one: an over-budget prompt
// with some context is preferable to none.
func FitBlocks(fixedTokens int, blocks []string, maxTokens int) int {
	if len(blocks) == 0 {
		return 0
	}
	used := fixedTokens
	n := 0
	for _, b := range blocks {
		used += Estimate(b)
		if used > maxTokens {
			break
		}
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}
