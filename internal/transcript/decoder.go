// Package transcript turns the writer_chat stream into a live chat
// transcript: a frame decoder yields tokens and the Assembler folds them
// into the latest assistant message.
package transcript

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
)

const (
	framePrefix = "data:"
	doneMarker  = "[DONE]"
)

// Frames yields the token of every data: line read from r, in order. One
// space after the prefix is dropped. Other lines are ignored and a
// "data: [DONE]" line ends the sequence. Lines may arrive split across
// reads.
func Frames(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				line = strings.TrimSuffix(line, "\n")
				line = strings.TrimSuffix(line, "\r")
				if tok, ok := parseFrame(line); ok {
					if tok == doneMarker {
						return
					}
					if !yield(tok, nil) {
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
		}
	}
}

func parseFrame(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, framePrefix)
	if !ok {
		return "", false
	}
	rest, _ = strings.CutPrefix(rest, " ")
	return rest, true
}

// Tokens decodes body until the stream ends, the consumer stops or ctx is
// cancelled. body is closed in every case; cancellation closes it right
// away so a blocked read returns.
func Tokens(ctx context.Context, body io.ReadCloser) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var once sync.Once
		closeBody := func() { once.Do(func() { _ = body.Close() }) }
		defer closeBody()
		stop := context.AfterFunc(ctx, closeBody)
		defer stop()

		for tok, err := range Frames(body) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield("", ctxErr)
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
		}
	}
}
