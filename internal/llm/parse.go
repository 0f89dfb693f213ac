package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atlasmedia/pulse/internal/pkg/logger"
)

// ParseResult is the explicit outcome of a typed generation: either a
// decoded value or the raw output plus the parse failure, never a panic.
type ParseResult[T any] struct {
	Value   T
	Raw     string
	Err     error
	Retried bool
}

// OK reports whether the value decoded cleanly.
func (r ParseResult[T]) OK() bool { return r.Err == nil }

// repairInstruction is appended on the single retry after a parse failure.
const repairInstruction = "Your previous reply was not valid JSON. Respond again with ONLY a valid JSON object matching the requested schema. No prose, no markdown fences."

// GenerateJSON runs one generation expecting a JSON object of type T. On a
// parse failure it retries exactly once with an explicit repair
// instruction; a bounded loop, not recursion. Transport errors surface as
// the returned error, parse failures live in the result.
func GenerateJSON[T any](ctx context.Context, g Generator, system, prompt string) (ParseResult[T], error) {
	var result ParseResult[T]

	raw, err := g.Generate(ctx, system, prompt)
	if err != nil {
		return result, err
	}
	result.Raw = raw

	if err := decodeInto(raw, &result.Value); err == nil {
		return result, nil
	} else {
		logger.Debug("generation parse failed, retrying with repair instruction", "error", err)
	}

	result.Retried = true
	raw, err = g.Generate(ctx, system, prompt+"\n\n"+repairInstruction)
	if err != nil {
		return result, err
	}
	result.Raw = raw

	if err := decodeInto(raw, &result.Value); err != nil {
		result.Err = fmt.Errorf("unparseable generation output after retry: %w", err)
	}
	return result, nil
}

// decodeInto tolerates markdown fences and leading prose by slicing from
// the first '{' to the last '}' before unmarshaling.
func decodeInto(raw string, dest interface{}) error {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return fmt.Errorf("no JSON object in output")
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), dest)
}
