package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// thinkBlock matches a leading <think>...</think> reasoning block.
var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ErrNoJSONObject is returned when a response holds no decodable JSON object.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// ExtractJSONObject returns the first top-level JSON object in a model
// response, byte for byte as the model wrote it. Prose, markdown fences and a
// leading <think> block are ignored. A balanced {...} span that is not valid
// JSON (a trailing comma, prose in braces) is skipped whole, so an object
// nested inside it is never returned in its place. A truncated object ends the
// search.
func ExtractJSONObject(response string) (json.RawMessage, error) {
	text := thinkBlock.ReplaceAllString(response, "")

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		var obj json.RawMessage
		err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj)
		if err == nil {
			return obj, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: object at offset %d is truncated", ErrNoJSONObject, i)
		}

		end, ok := spanEnd(text, i)
		if !ok {
			return nil, fmt.Errorf("%w: object at offset %d is unbalanced", ErrNoJSONObject, i)
		}
		i = end
	}

	return nil, ErrNoJSONObject
}

// spanEnd returns the index of the brace closing the one at start. Braces
// inside string literals do not count.
func spanEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
