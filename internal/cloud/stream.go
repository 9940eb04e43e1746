// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the event type and the joined data lines of the next
// event. It returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a lazy, single-pass sequence of text fragments. Nothing is read
// from the network until Next is called. Always call Close; it is safe to
// call early and more than once.
//
//	stream, err := provider.ChatStream(ctx, "hello")
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Text())
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//
// A Stream is not safe for concurrent use.
type Stream struct {
	ctx      context.Context
	provider string
	reader   *SSEReader
	body     io.Closer
	cancel   context.CancelFunc
	watchdog *watchdog
	dialect  dialect

	text    string
	content strings.Builder
	usage   Completion
	err     error
	done    bool

	once   sync.Once
	finish func(usage Completion, err error)
}

// Next advances to the next non-empty fragment. It returns false at the end
// of the stream or on error.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		_, data, err := s.reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.end(nil)
			} else {
				s.end(s.mapError(err))
			}
			return false
		}
		s.watchdog.reset()

		if s.dialect.isDone(data) {
			s.end(nil)
			return false
		}

		chunk, ok := s.dialect.parseChunk(data)
		if !ok {
			// Malformed chunks are skipped
			continue
		}
		s.observe(chunk)
		if chunk.Content == "" {
			continue
		}
		s.text = chunk.Content
		s.content.WriteString(chunk.Content)
		return true
	}
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string {
	return s.text
}

// Content returns everything received so far.
func (s *Stream) Content() string {
	return s.content.String()
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the connection and records usage if that has not happened.
func (s *Stream) Close() error {
	s.end(nil)
	return nil
}

func (s *Stream) observe(chunk Completion) {
	if chunk.InputTokens > 0 {
		s.usage.InputTokens = chunk.InputTokens
	}
	if chunk.OutputTokens > 0 {
		s.usage.OutputTokens = chunk.OutputTokens
	}
	if chunk.Model != "" {
		s.usage.Model = chunk.Model
	}
}

func (s *Stream) end(err error) {
	s.once.Do(func() {
		s.done = true
		s.err = err
		s.text = ""
		s.watchdog.stop()
		s.cancel()
		s.body.Close()
		if s.finish != nil {
			s.finish(s.usage, err)
		}
	})
}

func (s *Stream) mapError(err error) error {
	if s.watchdog.expired() {
		return &TimeoutError{Provider: s.provider, Err: err}
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return classifyTransportError(s.provider, err)
}

// =============================================================================
// IDLE WATCHDOG
// =============================================================================

// watchdog cancels a streaming request when no data arrives for d.
type watchdog struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newWatchdog(d time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *watchdog) reset() {
	w.timer.Reset(w.d)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}

func (w *watchdog) expired() bool {
	return w.fired.Load()
}
