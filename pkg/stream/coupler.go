// Package stream bridges provider chunk production to client consumption
// with bounded memory, keep-alive frames and cooperative cancellation.
package stream

import (
	"context"
	"sync"
	"time"

	"helios-hq/relay/pkg/providers"
)

// DefaultBufferSize is the bounded queue capacity in chunks.
const DefaultBufferSize = 1024

// DefaultKeepAliveInterval is how long the downstream may sit idle before a
// keep-alive frame is emitted to defeat intermediary timeouts.
const DefaultKeepAliveInterval = 15 * time.Second

// Options configures a coupling.
type Options struct {
	// BufferSize is the queue capacity. Default: 1024.
	BufferSize int

	// KeepAliveInterval is the idle interval between keep-alive frames.
	// Default: 15s. Zero disables keep-alives (tests).
	KeepAliveInterval time.Duration

	// OnDone is invoked exactly once when the stream terminates, with the
	// final accounting. Invoked from the coupler's goroutine.
	OnDone func(Outcome)
}

// Outcome is the terminal accounting of one coupled stream.
type Outcome struct {
	// Err is the upstream failure, nil on normal completion.
	Err error

	// Canceled is true when the downstream consumer cancelled; Err is nil
	// and no breaker outcome should be recorded.
	Canceled bool

	// Chunks is the number of content chunks emitted downstream.
	Chunks int

	// Usage is the final token usage if the provider reported one;
	// on cancellation it is synthesized from the emitted chunk count.
	Usage *providers.TokenUsage

	// Duration is the stream's lifetime from first chunk to termination.
	Duration time.Duration
}

// Event is one item delivered to the consumer.
type Event struct {
	// Chunk is the normalized chunk; nil for keep-alive events.
	Chunk *providers.StreamChunk

	// KeepAlive marks an idle-interval heartbeat.
	KeepAlive bool
}

// Stream is the consumer side of a coupling.
//
// Events are delivered in upstream arrival order and end with exactly one
// terminal chunk — Done or Err set — after which the channel closes. A
// consumer never observes content chunks after the terminal one.
type Stream struct {
	events chan Event

	cancelOnce sync.Once
	cancel     context.CancelFunc
}

// Events returns the consumer channel. The channel closes after the
// terminal event.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Cancel aborts the coupling from the consumer side: the producer stops,
// the upstream connection drops, and OnDone fires with Canceled set.
// Idempotent and safe at any point.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Open couples a provider stream decoder to a consumer.
//
// Open consumes the first upstream event synchronously. If the stream
// fails before yielding any chunk, Open returns that error and the caller
// (the dispatch pipeline) may still fail over to another provider — the
// client response is not yet committed. Once Open returns a Stream, the
// response is committed and later failures surface as a terminal error
// chunk inside the stream.
func Open(ctx context.Context, dec providers.StreamDecoder, opts Options) (*Stream, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	first, err := dec.Next(ctx)
	if err != nil {
		dec.Close()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan Event, 1),
		cancel: cancel,
	}

	buffer := make(chan *providers.StreamChunk, opts.BufferSize)

	start := time.Now()
	var produceErr error
	var canceled bool

	// Producer: upstream reader. Suspends on the bounded buffer when the
	// consumer lags; the buffer bound is the memory ceiling per stream.
	go func() {
		defer close(buffer)
		defer dec.Close()

		// Re-deliver the chunk consumed during Open.
		if !sendBuffered(streamCtx, buffer, first) {
			canceled = true
			return
		}
		if first.Terminal() {
			return
		}

		for {
			chunk, err := dec.Next(streamCtx)
			if err != nil {
				if streamCtx.Err() != nil {
					canceled = true
					return
				}
				produceErr = err
				return
			}
			if !sendBuffered(streamCtx, buffer, chunk) {
				canceled = true
				return
			}
			if chunk.Terminal() {
				return
			}
		}
	}()

	// Forwarder: drains the buffer to the consumer, injecting keep-alive
	// events when the downstream sits idle.
	go func() {
		defer close(s.events)

		var keepAlive *time.Ticker
		var tick <-chan time.Time
		if opts.KeepAliveInterval > 0 {
			keepAlive = time.NewTicker(opts.KeepAliveInterval)
			defer keepAlive.Stop()
			tick = keepAlive.C
		}

		chunks := 0
		var usage *providers.TokenUsage

		for {
			select {
			case chunk, ok := <-buffer:
				if !ok {
					// Producer finished: emit a terminal error chunk if the
					// upstream failed mid-stream.
					if produceErr != nil && !canceled {
						s.events <- Event{Chunk: &providers.StreamChunk{Err: produceErr}}
					}
					finish(opts.OnDone, Outcome{
						Err:      produceErr,
						Canceled: canceled,
						Chunks:   chunks,
						Usage:    finalUsage(usage, chunks),
						Duration: time.Since(start),
					})
					return
				}

				if keepAlive != nil {
					keepAlive.Reset(opts.KeepAliveInterval)
				}
				if chunk.Usage != nil {
					usage = chunk.Usage
				}
				if chunk.Delta != "" || len(chunk.ToolCalls) > 0 {
					chunks++
				}

				select {
				case s.events <- Event{Chunk: chunk}:
				case <-streamCtx.Done():
					canceled = true
					finish(opts.OnDone, Outcome{
						Canceled: true,
						Chunks:   chunks,
						Usage:    finalUsage(usage, chunks),
						Duration: time.Since(start),
					})
					return
				}

			case <-tick:
				select {
				case s.events <- Event{KeepAlive: true}:
				case <-streamCtx.Done():
					canceled = true
					finish(opts.OnDone, Outcome{
						Canceled: true,
						Chunks:   chunks,
						Usage:    finalUsage(usage, chunks),
						Duration: time.Since(start),
					})
					return
				}

			case <-streamCtx.Done():
				canceled = true
				finish(opts.OnDone, Outcome{
					Canceled: true,
					Chunks:   chunks,
					Usage:    finalUsage(usage, chunks),
					Duration: time.Since(start),
				})
				return
			}
		}
	}()

	return s, nil
}

// sendBuffered pushes a chunk onto the bounded buffer, honoring
// cancellation while suspended on a full queue.
func sendBuffered(ctx context.Context, buffer chan<- *providers.StreamChunk, chunk *providers.StreamChunk) bool {
	select {
	case buffer <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish invokes the completion callback when configured.
func finish(onDone func(Outcome), outcome Outcome) {
	if onDone != nil {
		onDone(outcome)
	}
}

// finalUsage returns the provider-reported usage, or synthesizes one from
// the emitted chunk count when the stream ended before usage arrived
// (cancellation, mid-stream failure). One chunk approximates one token.
func finalUsage(reported *providers.TokenUsage, chunks int) *providers.TokenUsage {
	if reported != nil {
		return reported
	}
	return &providers.TokenUsage{CompletionTokens: chunks, TotalTokens: chunks}
}
