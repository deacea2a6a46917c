package chat

import (
	"unicode"
	"unicode/utf8"
)

const tokenOverhead = 5 // role and message metadata

// EstimateTokens approximates the token count of a text without running
// a real tokenizer. Text dominated by Arabic-script characters packs
// roughly two characters per token, Latin-dominated text roughly four.
// Empty text estimates to zero. Pure and deterministic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var latin, dense int
	for _, r := range text {
		lower := unicode.ToLower(r)
		switch {
		case 'a' <= lower && lower <= 'z':
			latin++
		case 0x0600 <= r && r <= 0x06FF:
			dense++
		}
	}

	n := utf8.RuneCountInString(text)
	var tokens float64
	if dense > latin {
		tokens = float64(n) / 2
	} else {
		tokens = float64(n) / 4
	}
	return int(tokens) + tokenOverhead
}
