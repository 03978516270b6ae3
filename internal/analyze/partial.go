package analyze

import (
	"encoding/json"
	"strings"

	"github.com/cliplens/cliplens/internal/types"
)

// CleanJSONBlock removes markdown code block wrappers from JSON
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ExtractJSONObject slices the outermost {...} object out of model output,
// tolerating prose or code fences around it. Returns "" when no object is
// present.
func ExtractJSONObject(text string) string {
	text = CleanJSONBlock(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// CompletePartialJSON repairs a JSON object that was cut off mid-stream so it
// parses: it closes an unterminated string, drops a dangling comma or key,
// and closes every open bracket. The input must start at the object's opening
// brace.
func CompletePartialJSON(partial string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(partial); i++ {
		c := partial[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := partial
	if escaped {
		// Trailing lone backslash inside a string; drop it so the closing
		// quote is not swallowed.
		out = out[:len(out)-1]
	}
	if inString {
		out += `"`
	}

	out = strings.TrimRight(out, " \t\r\n")
	switch {
	case strings.HasSuffix(out, ":"):
		out += "null"
	case strings.HasSuffix(out, ","):
		out = out[:len(out)-1]
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}

// DecodePartialAnalysis tries to decode what has streamed so far into an
// analysis snapshot. If repairing the raw tail fails (the stream may have
// stopped inside a key), it backs off to the previous comma and tries again.
// Chunks that still cannot be decoded are skipped; the next chunk gets
// another chance.
func DecodePartialAnalysis(accumulated string) (types.Analysis, bool) {
	text := CleanJSONBlock(accumulated)
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return types.Analysis{}, false
	}
	text = text[start:]
	for {
		var a types.Analysis
		if err := json.Unmarshal([]byte(CompletePartialJSON(text)), &a); err == nil {
			return a, true
		}
		cut := strings.LastIndexByte(text, ',')
		if cut == -1 {
			return types.Analysis{}, false
		}
		text = text[:cut]
	}
}
