package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"helios-hq/relay/pkg/providers"
)

// scriptedDecoder yields a fixed chunk sequence, then an optional error.
type scriptedDecoder struct {
	mu     sync.Mutex
	chunks []*providers.StreamChunk
	err    error
	closed bool

	// delay before each Next returns, to exercise backpressure paths.
	delay time.Duration
}

func (d *scriptedDecoder) Next(ctx context.Context) (*providers.StreamChunk, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chunks) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, io.EOF
	}
	chunk := d.chunks[0]
	d.chunks = d.chunks[1:]
	return chunk, nil
}

func (d *scriptedDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func contentChunks(n int) []*providers.StreamChunk {
	out := make([]*providers.StreamChunk, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, &providers.StreamChunk{Delta: "x"})
	}
	out = append(out, &providers.StreamChunk{
		Done:         true,
		FinishReason: providers.FinishReasonStop,
		Usage:        &providers.TokenUsage{PromptTokens: 5, CompletionTokens: n, TotalTokens: 5 + n},
	})
	return out
}

func TestOpen_NormalStream(t *testing.T) {
	var outcome Outcome
	done := make(chan struct{})

	dec := &scriptedDecoder{chunks: contentChunks(5)}
	s, err := Open(context.Background(), dec, Options{
		OnDone: func(o Outcome) { outcome = o; close(done) },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var content int
	var terminals int
	for ev := range s.Events() {
		if ev.KeepAlive {
			continue
		}
		if ev.Chunk.Terminal() {
			terminals++
			continue
		}
		content++
	}

	if content != 5 {
		t.Errorf("content chunks = %d, want 5", content)
	}
	if terminals != 1 {
		t.Errorf("terminal chunks = %d, want exactly 1", terminals)
	}

	<-done
	if outcome.Err != nil || outcome.Canceled {
		t.Errorf("Outcome = %+v, want clean completion", outcome)
	}
	if outcome.Usage == nil || outcome.Usage.CompletionTokens != 5 {
		t.Errorf("Outcome.Usage = %+v, want provider-reported usage", outcome.Usage)
	}
}

func TestOpen_ErrorBeforeFirstChunk(t *testing.T) {
	wantErr := errors.New("connect reset")
	dec := &scriptedDecoder{err: wantErr}

	_, err := Open(context.Background(), dec, Options{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Open() error = %v, want the upstream error for failover", err)
	}
	if !dec.closed {
		t.Error("decoder not closed after pre-flush failure")
	}
}

func TestOpen_ErrorAfterFlush(t *testing.T) {
	wantErr := errors.New("connection dropped")
	chunks := []*providers.StreamChunk{
		{Delta: "a"}, {Delta: "b"}, {Delta: "c"}, {Delta: "d"}, {Delta: "e"},
	}
	dec := &scriptedDecoder{chunks: chunks, err: wantErr}

	var outcome Outcome
	done := make(chan struct{})
	s, err := Open(context.Background(), dec, Options{
		OnDone: func(o Outcome) { outcome = o; close(done) },
	})
	if err != nil {
		t.Fatalf("Open() error = %v, want nil (first chunk arrived)", err)
	}

	var content int
	var sawErrTerminal bool
	var afterTerminal int
	for ev := range s.Events() {
		if ev.KeepAlive {
			continue
		}
		if sawErrTerminal {
			afterTerminal++
			continue
		}
		if ev.Chunk.Err != nil {
			sawErrTerminal = true
			continue
		}
		content++
	}

	if content != 5 {
		t.Errorf("content chunks = %d, want all 5 before the failure", content)
	}
	if !sawErrTerminal {
		t.Error("no terminal error chunk observed")
	}
	if afterTerminal != 0 {
		t.Errorf("%d chunks after the terminal, want 0", afterTerminal)
	}

	<-done
	if !errors.Is(outcome.Err, wantErr) {
		t.Errorf("Outcome.Err = %v, want upstream error", outcome.Err)
	}
}

func TestStream_Cancel(t *testing.T) {
	// A slow producer that would stream forever.
	many := make([]*providers.StreamChunk, 1000)
	for i := range many {
		many[i] = &providers.StreamChunk{Delta: "x"}
	}
	dec := &scriptedDecoder{chunks: many, delay: time.Millisecond}

	var outcome Outcome
	done := make(chan struct{})
	s, err := Open(context.Background(), dec, Options{
		OnDone: func(o Outcome) { outcome = o; close(done) },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Read three chunks, then hang up.
	read := 0
	for ev := range s.Events() {
		if ev.Chunk != nil && ev.Chunk.Delta != "" {
			read++
		}
		if read == 3 {
			break
		}
	}
	s.Cancel()
	s.Cancel() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDone not invoked within 2s of cancellation")
	}

	if !outcome.Canceled {
		t.Error("Outcome.Canceled = false after downstream cancel")
	}
	if outcome.Err != nil {
		t.Errorf("Outcome.Err = %v on cancellation, want nil (no breaker outcome)", outcome.Err)
	}
	if outcome.Usage == nil || outcome.Usage.CompletionTokens == 0 {
		t.Errorf("Outcome.Usage = %+v, want usage synthesized from emitted chunks", outcome.Usage)
	}
}

func TestOpen_KeepAlive(t *testing.T) {
	// Producer stalls after the first chunk; keep-alives must flow.
	chunks := []*providers.StreamChunk{{Delta: "a"}}
	dec := &scriptedDecoder{chunks: chunks, delay: 500 * time.Millisecond}

	s, err := Open(context.Background(), dec, Options{
		KeepAliveInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Cancel()

	keepAlives := 0
	timeout := time.After(400 * time.Millisecond)
	for keepAlives < 3 {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("stream closed after %d keep-alives, want 3", keepAlives)
			}
			if ev.KeepAlive {
				keepAlives++
			}
		case <-timeout:
			t.Fatalf("saw %d keep-alives in 400ms at a 50ms interval, want ≥3", keepAlives)
		}
	}
}

func TestOpen_OrderPreserved(t *testing.T) {
	chunks := make([]*providers.StreamChunk, 0, 100)
	for i := 0; i < 100; i++ {
		chunks = append(chunks, &providers.StreamChunk{Delta: string(rune('0' + i%10))})
	}
	chunks = append(chunks, &providers.StreamChunk{Done: true})
	dec := &scriptedDecoder{chunks: chunks}

	s, err := Open(context.Background(), dec, Options{BufferSize: 4})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	i := 0
	for ev := range s.Events() {
		if ev.KeepAlive || ev.Chunk.Terminal() {
			continue
		}
		want := string(rune('0' + i%10))
		if ev.Chunk.Delta != want {
			t.Fatalf("chunk %d = %q, want %q (order violated)", i, ev.Chunk.Delta, want)
		}
		i++
	}
	if i != 100 {
		t.Fatalf("received %d chunks, want 100", i)
	}
}
