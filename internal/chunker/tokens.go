package chunker

// charsPerToken is the characters-per-token ratio used for budget estimates.
// Deliberately conservative so a chunk never overshoots the real limit.
const charsPerToken = 3

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}
