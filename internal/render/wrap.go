package render

import "strings"

// WrapText word-wraps text to at most maxChars characters per line. Wrapping
// happens here, in-process, because ImageMagick's caption auto-wrap has proven
// unreliable across environments. Words longer than maxChars are hard-split.
func WrapText(text string, maxChars int) string {
	if maxChars <= 0 {
		return strings.TrimSpace(text)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var current strings.Builder
	for _, word := range words {
		for len(word) > maxChars {
			if current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
			lines = append(lines, word[:maxChars])
			word = word[maxChars:]
		}
		if word == "" {
			continue
		}
		if current.Len() == 0 {
			current.WriteString(word)
			continue
		}
		if current.Len()+1+len(word) > maxChars {
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
			continue
		}
		current.WriteString(" ")
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n")
}
