package rotel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rotelhex/rotelhex/internal/protocol"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

// fakePort is an in-memory serial channel. Bytes pushed with feed are read
// back by the transport; writes are recorded with their timestamps.
type fakePort struct {
	rx      chan []byte
	pending []byte

	mu      sync.Mutex
	written []byte
	writes  []time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		rx:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) feed(b []byte) {
	p.rx <- append([]byte(nil), b...)
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case data := <-p.rx:
			p.pending = data
		case <-p.closed:
			return 0, io.EOF
		case <-time.After(10 * time.Millisecond):
			return 0, timeoutErr{}
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	p.writes = append(p.writes, time.Now())
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

func (p *fakePort) WriteTimes() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.writes...)
}

// fakeOpener hands out its ports in order, then fails
type fakeOpener struct {
	mu     sync.Mutex
	ports  []*fakePort
	opened int
}

func newFakeOpener(ports ...*fakePort) *fakeOpener {
	return &fakeOpener{ports: ports}
}

func (o *fakeOpener) Open(ctx context.Context) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opened >= len(o.ports) {
		return nil, errors.New("no such device")
	}
	p := o.ports[o.opened]
	o.opened++
	return p, nil
}

func (o *fakeOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// countingRecorder counts Recorder events
type countingRecorder struct {
	mu       sync.Mutex
	received int
	dropped  map[string]int
	sent     []string
	reopened int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{dropped: make(map[string]int)}
}

func (r *countingRecorder) FrameReceived(*protocol.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
}

func (r *countingRecorder) FrameDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *countingRecorder) CommandSent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, name)
}

func (r *countingRecorder) ChannelReopened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reopened++
}

func (r *countingRecorder) Reopened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reopened
}

func (r *countingRecorder) Received() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

func (r *countingRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.dropped {
		total += n
	}
	return total
}

func (r *countingRecorder) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// displayFrame builds a response frame showing source and record
func displayFrame(source, record string) []byte {
	data := make([]byte, 0, 11)
	src := protocol.SegmentOf(source)
	rec := protocol.SegmentOf(record)
	data = append(data, src[:]...)
	data = append(data, 0x00)
	data = append(data, rec[:]...)
	return protocol.Encode(0x04, 0x20, data)
}
