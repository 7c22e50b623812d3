package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/common"
)

// DoneFrame terminates a re-encoded stream
const DoneFrame = "data: [DONE]\n\n"

var errStreamAborted = errors.New("generation stream aborted")

type textChunk struct {
	Response string `json:"response"`
}

// writeTextFrame writes one SSE data frame carrying a text delta
func writeTextFrame(w io.Writer, text string) error {
	payload, err := json.Marshal(textChunk{Response: text})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// pipeStream is the ReadCloser returned by SDK-backed providers.
// Closing it cancels the upstream call and unblocks the producer.
type pipeStream struct {
	reader *io.PipeReader
	cancel context.CancelFunc
}

func (s *pipeStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *pipeStream) Close() error {
	s.cancel()
	return s.reader.Close()
}

// startPipe runs produce in a goroutine writing into a pipe. The producer's
// return value (or the context error) is delivered to the reader.
func startPipe(ctx context.Context, cancel context.CancelFunc, logger arbor.ILogger, name string, produce func(ctx context.Context, w io.Writer) error) io.ReadCloser {
	reader, writer := io.Pipe()

	common.SafeGo(logger, name, func() {
		defer cancel()
		// Reached only if produce panics; an earlier close error is never overwritten
		defer writer.CloseWithError(errStreamAborted)

		err := produce(ctx, writer)
		if err == nil {
			err = ctx.Err()
		}
		writer.CloseWithError(err)
	})

	return &pipeStream{reader: reader, cancel: cancel}
}
