package rotel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

// DefaultCommandGap is the minimum quiet time after every command write.
// The receiver drops commands that arrive closer together.
const DefaultCommandGap = 40 * time.Millisecond

// Port is an open serial channel
type Port = io.ReadWriteCloser

// Opener opens the serial channel. It is called again after the channel is
// lost, so every call must return a fresh Port.
type Opener interface {
	Open(ctx context.Context) (Port, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context) (Port, error)

// Open calls f(ctx)
func (f OpenerFunc) Open(ctx context.Context) (Port, error) { return f(ctx) }

// Recorder receives transport and client events. internal/metrics provides
// the Prometheus implementation.
type Recorder interface {
	FrameReceived(resp *protocol.Response)
	FrameDropped(reason string)
	CommandSent(name string)
	ChannelReopened()
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(*protocol.Response) {}
func (nopRecorder) FrameDropped(string)              {}
func (nopRecorder) CommandSent(string)               {}
func (nopRecorder) ChannelReopened()                 {}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithCommandGap sets the quiet time after each write. Values below
// DefaultCommandGap are raised to it.
func WithCommandGap(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > DefaultCommandGap {
			t.gap = d
		}
	}
}

// WithRecorder sets the event recorder
func WithRecorder(r Recorder) TransportOption {
	return func(t *Transport) {
		if r != nil {
			t.rec = r
		}
	}
}

// WithBackOff sets the reopen backoff policy. newBackOff is called once per
// reopen.
func WithBackOff(newBackOff func() backoff.BackOff) TransportOption {
	return func(t *Transport) {
		t.newBackOff = newBackOff
	}
}

// Transport owns the serial channel. Writes are serialised and paced; one
// read loop at a time consumes frames.
type Transport struct {
	opener     Opener
	gap        time.Duration
	rec        Recorder
	newBackOff func() backoff.BackOff

	mu     sync.Mutex // guards port, frames, closed
	port   Port
	frames *protocol.FrameReader
	closed bool

	writeMu sync.Mutex // held for the write plus the command gap
	readMu  sync.Mutex // held by whoever is consuming frames

	tapMu   sync.Mutex
	running bool
	taps    map[uint64]chan *protocol.Response
	nextTap uint64
}

// NewTransport creates a Transport. The channel is not opened until Open.
func NewTransport(opener Opener, opts ...TransportOption) *Transport {
	t := &Transport{
		opener:     opener,
		gap:        DefaultCommandGap,
		rec:        nopRecorder{},
		newBackOff: defaultBackOff,
		taps:       make(map[uint64]chan *protocol.Response),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// defaultBackOff retries forever, from 250ms up to 30s between attempts
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Open opens the channel if it is not open already
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.port != nil {
		return nil
	}
	return t.openLocked(ctx)
}

func (t *Transport) openLocked(ctx context.Context) error {
	port, err := t.opener.Open(ctx)
	if err != nil {
		return NewChannelError("failed to open serial channel", err)
	}
	t.port = port
	t.frames = protocol.NewFrameReader(bufio.NewReader(port))
	logging.LogPortEvent(portName(t.opener), "opened")
	return nil
}

// Close closes the channel. Blocked reads return and later calls fail with
// ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.frames = nil
	logging.LogPortEvent(portName(t.opener), "closed")
	return err
}

// Send writes cmd and then holds the write lock for the command gap, so no
// two commands ever reach the receiver closer together than the gap. The gap
// is served even when ctx is cancelled during it.
func (t *Transport) Send(ctx context.Context, cmd *protocol.Command) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	port, _, err := t.current()
	if err != nil {
		return err
	}

	logging.LogFrame("tx", cmd.Raw)
	if err := writeFull(port, cmd.Raw); err != nil {
		return classify("failed to write command", err)
	}
	time.Sleep(t.gap)
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// current returns the open port and its frame reader
func (t *Transport) current() (Port, *protocol.FrameReader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, nil, ErrClosed
	}
	if t.port == nil {
		return nil, nil, NewChannelError("serial channel is not open", nil)
	}
	return t.port, t.frames, nil
}

// Run reads frames until ctx is done or the transport is closed, passing each
// decoded response to handle and to any pending Read. Malformed frames are
// dropped; a lost channel is reopened with backoff. Run returns ctx.Err() or
// ErrClosed.
func (t *Transport) Run(ctx context.Context, handle func(*protocol.Response)) error {
	t.tapMu.Lock()
	t.running = true
	t.tapMu.Unlock()
	defer func() {
		t.tapMu.Lock()
		t.running = false
		t.tapMu.Unlock()
	}()

	t.readMu.Lock()
	defer t.readMu.Unlock()

	return t.loop(ctx, func(resp *protocol.Response) bool {
		if handle != nil {
			handle(resp)
		}
		t.publish(resp)
		return true
	})
}

// Read collects up to max responses. While Run is active the responses are
// taken from it; otherwise Read consumes the channel itself. When ctx ends
// first, Read returns what it has collected with a nil error.
func (t *Transport) Read(ctx context.Context, max int) ([]*protocol.Response, error) {
	if max <= 0 {
		return nil, nil
	}

	t.tapMu.Lock()
	if t.running {
		id, ch := t.subscribeLocked(max)
		t.tapMu.Unlock()
		defer t.unsubscribe(id)
		return collect(ctx, ch, max), nil
	}
	// Taking readMu before releasing tapMu keeps a Run that starts now from
	// overtaking this Read
	t.readMu.Lock()
	t.tapMu.Unlock()
	defer t.readMu.Unlock()

	out := make([]*protocol.Response, 0, max)
	err := t.loop(ctx, func(resp *protocol.Response) bool {
		out = append(out, resp)
		return len(out) < max
	})
	if err != nil && ctx.Err() == nil {
		return out, err
	}
	return out, nil
}

func collect(ctx context.Context, ch <-chan *protocol.Response, max int) []*protocol.Response {
	out := make([]*protocol.Response, 0, max)
	for len(out) < max {
		select {
		case resp := <-ch:
			out = append(out, resp)
		case <-ctx.Done():
			return out
		}
	}
	return out
}

func (t *Transport) subscribeLocked(size int) (uint64, chan *protocol.Response) {
	t.nextTap++
	ch := make(chan *protocol.Response, size)
	t.taps[t.nextTap] = ch
	return t.nextTap, ch
}

func (t *Transport) unsubscribe(id uint64) {
	t.tapMu.Lock()
	defer t.tapMu.Unlock()
	delete(t.taps, id)
}

// publish hands resp to pending Reads. A reader whose buffer is full has all
// it asked for, so the response is skipped for it.
func (t *Transport) publish(resp *protocol.Response) {
	t.tapMu.Lock()
	defer t.tapMu.Unlock()
	for _, ch := range t.taps {
		select {
		case ch <- resp:
		default:
		}
	}
}

// loop is the frame pump shared by Run and Read. It stops when deliver
// returns false.
func (t *Transport) loop(ctx context.Context, deliver func(*protocol.Response) bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		port, frames, err := t.current()
		if err != nil {
			if IsClosed(err) {
				return err
			}
			if err := t.reopen(ctx, nil); err != nil {
				return err
			}
			continue
		}

		frame, err := frames.Next()
		switch {
		case err == nil:
		case protocol.IsFramingError(err):
			t.rec.FrameDropped(dropReason(err))
			logging.Debug("Dropped frame", zap.Error(err))
			continue
		case isTimeout(err):
			continue
		default:
			if t.isClosed() {
				return ErrClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn("Serial channel lost", zap.String("port", portName(t.opener)), zap.Error(err))
			if err := t.reopen(ctx, port); err != nil {
				return err
			}
			continue
		}

		resp, err := protocol.Decode(frame)
		if err != nil {
			t.rec.FrameDropped(dropReason(err))
			logging.LogRawBytes("Dropped undecodable frame", frame)
			continue
		}
		logging.LogFrame("rx", frame)
		if resp.BadChecksum {
			logging.Debug("Frame checksum mismatch", zap.String("response", resp.String()))
		}
		t.rec.FrameReceived(resp)

		if !deliver(resp) {
			return nil
		}
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNotFrameStart):
		return "not_frame_start"
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return "truncated"
	case errors.Is(err, protocol.ErrFrameRestarted):
		return "restarted"
	case errors.Is(err, protocol.ErrShortFrame):
		return "short"
	default:
		return "other"
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// reopen discards failed (if it is still the current port) and opens a new
// one, retrying with backoff until it succeeds, ctx ends or the transport is
// closed
func (t *Transport) reopen(ctx context.Context, failed Port) error {
	t.mu.Lock()
	if failed != nil && t.port == failed {
		_ = failed.Close()
		t.port = nil
		t.frames = nil
	}
	t.mu.Unlock()

	operation := func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return backoff.Permanent(ErrClosed)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if t.port != nil {
			return nil
		}
		return t.openLocked(ctx)
	}
	notify := func(err error, next time.Duration) {
		logging.Warn("Reopening serial channel failed, retrying",
			zap.String("port", portName(t.opener)),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(t.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	t.rec.ChannelReopened()
	logging.LogPortEvent(portName(t.opener), "reopened")
	return nil
}

func portName(o Opener) string {
	if s, ok := o.(fmt.Stringer); ok {
		return s.String()
	}
	return "serial"
}
