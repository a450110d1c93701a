package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	dataPrefix     = "data:"
	doneSentinel   = "[DONE]"
	maxFrameBytes  = 1024 * 1024
	initFrameBytes = 64 * 1024
)

// DeltaFunc receives each non-empty answer delta in arrival order.
type DeltaFunc func(delta string)

// Decoder parses a newline-delimited event stream of chat completion
// chunks into accumulated answer text. Frames that are not "data:" events
// are ignored; frames whose payload does not parse are skipped without
// aborting the stream. The [DONE] sentinel stops decoding immediately,
// even if more bytes are buffered.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initFrameBytes), maxFrameBytes)
	return &Decoder{scanner: scanner}
}

// Decode reads frames until the terminator, a transport error, or ctx
// cancellation, invoking onDelta for every parsed non-empty delta. It
// returns the text accumulated so far in every case: on early termination
// the partial answer is the final answer.
func (d *Decoder) Decode(ctx context.Context, onDelta DeltaFunc) (string, error) {
	var answer strings.Builder

	for d.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return answer.String(), err
		}

		line := strings.TrimSpace(d.scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == doneSentinel {
			return answer.String(), nil
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed frame: skip, keep what we have
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		answer.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	if err := d.scanner.Err(); err != nil {
		return answer.String(), err
	}
	// EOF without [DONE]: treat accumulated text as the final answer
	return answer.String(), nil
}
