package driver

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/ardnew/softuart/driver/hal/sim"
	"github.com/ardnew/softuart/loop"
	"github.com/ardnew/softuart/pkg"
)

type completion struct {
	status pkg.Status
	n      int
}

// recorder collects completions in the order the loop runs them.
type recorder struct {
	events []completion
}

func (r *recorder) handler() Handler {
	return func(status pkg.Status, n int) {
		r.events = append(r.events, completion{status, n})
	}
}

func (r *recorder) expect(t *testing.T, want ...completion) {
	t.Helper()
	if len(r.events) != len(want) {
		t.Fatalf("completions = %v, want %v", r.events, want)
	}
	for i := range want {
		if r.events[i] != want[i] {
			t.Fatalf("completion[%d] = %v, want %v", i, r.events[i], want[i])
		}
	}
}

func newlinePred(b byte) bool { return b == '\n' }

func TestAsyncRead_ExactSize(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, Config{ReadQueueSize: 2, WriteQueueSize: 1})

	var rec recorder
	buf := make([]byte, 2)
	d.AsyncRead(buf, rec.handler())

	dev.FeedBytes([]byte("Hi"))
	if len(rec.events) != 0 {
		t.Fatal("handler ran before the loop drained")
	}
	el.Drain()

	rec.expect(t, completion{pkg.StatusSuccess, 2})
	if string(buf) != "Hi" {
		t.Errorf("buf = %q, want %q", buf, "Hi")
	}
}

func TestAsyncRead_ZeroSize(t *testing.T) {
	for _, queue := range []int{1, 2} {
		dev := sim.New()
		el := loop.New(8)
		d := New(dev, el, Config{ReadQueueSize: queue, WriteQueueSize: 1})

		var rec recorder
		d.AsyncRead(nil, rec.handler())
		el.Drain()

		rec.expect(t, completion{pkg.StatusSuccess, 0})
		if dev.StartReads() != 0 {
			t.Errorf("queue=%d: device touched %d times for zero-size read", queue, dev.StartReads())
		}
	}
}

func TestAsyncReadUntil_ZeroSize(t *testing.T) {
	for _, queue := range []int{1, 2} {
		dev := sim.New()
		el := loop.New(8)
		d := New(dev, el, Config{ReadQueueSize: queue, WriteQueueSize: 1})

		var rec recorder
		d.AsyncReadUntil(nil, newlinePred, rec.handler())
		el.Drain()

		rec.expect(t, completion{pkg.StatusBufferOverflow, 0})
		if dev.StartReads() != 0 {
			t.Errorf("queue=%d: device touched %d times for zero-size read", queue, dev.StartReads())
		}
	}
}

func TestAsyncReadUntil_EarlyTermination(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	var rec recorder
	buf := make([]byte, 8)
	d.AsyncReadUntil(buf, newlinePred, rec.handler())

	dev.FeedBytes([]byte("ab\nx"))
	el.Drain()

	rec.expect(t, completion{pkg.StatusSuccess, 3})
	if string(buf[:3]) != "ab\n" {
		t.Errorf("buf[:3] = %q, want %q", buf[:3], "ab\n")
	}
	if got := dev.PendingRX(); got != 1 {
		t.Errorf("PendingRX() = %d, want 1 (trailing byte must not be consumed)", got)
	}
}

func TestAsyncReadUntil_BufferOverflow(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	var rec recorder
	buf := make([]byte, 3)
	d.AsyncReadUntil(buf, newlinePred, rec.handler())

	dev.FeedBytes([]byte("abc"))
	el.Drain()

	rec.expect(t, completion{pkg.StatusBufferOverflow, 3})
}

func TestAsyncReadUntil_MatchOnFinalByte(t *testing.T) {
	// The predicate matches exactly when the device exhausts the armed
	// count, so the in-interrupt cancel loses to the imminent
	// completion. Policy: reported as exhaustion, not success.
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	var rec recorder
	buf := make([]byte, 3)
	d.AsyncReadUntil(buf, newlinePred, rec.handler())

	dev.FeedBytes([]byte("ab\n"))
	el.Drain()

	rec.expect(t, completion{pkg.StatusBufferOverflow, 3})
	if string(buf) != "ab\n" {
		t.Errorf("buf = %q, want %q", buf, "ab\n")
	}
}

func TestAsyncRead_DeviceError(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	var rec recorder
	buf := make([]byte, 4)
	d.AsyncRead(buf, rec.handler())

	dev.FeedBytes([]byte("ab"))
	dev.CompleteRead(pkg.StatusFramingError)
	el.Drain()

	rec.expect(t, completion{pkg.StatusFramingError, 2})
}

func TestCancelRead_MidFlight(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	var rec recorder
	buf := make([]byte, 4)
	d.AsyncRead(buf, rec.handler())
	dev.FeedBytes([]byte("ab"))

	if !d.CancelRead() {
		t.Fatal("CancelRead() = false, want true")
	}
	el.Drain()
	rec.expect(t, completion{pkg.StatusAborted, 2})

	// A second cancel has nothing to abort.
	if d.CancelRead() {
		t.Error("CancelRead() after cancel = true, want false")
	}
	if n := el.Drain(); n != 0 {
		t.Errorf("idle cancel posted %d completions", n)
	}
}

func TestCancelRead_Idle(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	if d.CancelRead() {
		t.Error("CancelRead() = true on idle driver, want false")
	}
	if n := el.Drain(); n != 0 {
		t.Errorf("idle cancel posted %d completions", n)
	}
}

func TestQueuedReads_FIFO(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, Config{ReadQueueSize: 3, WriteQueueSize: 1})

	var rec recorder
	buf1 := make([]byte, 1)
	buf2 := make([]byte, 2)
	d.AsyncRead(buf1, rec.handler())
	d.AsyncRead(buf2, rec.handler())
	d.AsyncReadUntil(nil, newlinePred, rec.handler())

	dev.FeedBytes([]byte("a"))
	dev.FeedBytes([]byte("bc"))
	el.Drain()

	rec.expect(t,
		completion{pkg.StatusSuccess, 1},
		completion{pkg.StatusSuccess, 2},
		completion{pkg.StatusBufferOverflow, 0},
	)
	if string(buf1) != "a" || string(buf2) != "bc" {
		t.Errorf("buffers = %q, %q, want %q, %q", buf1, buf2, "a", "bc")
	}
	if dev.StartReads() != 2 {
		t.Errorf("StartReads() = %d, want 2 (zero-size request never armed)", dev.StartReads())
	}
}

func TestQueuedReads_CancelAll(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, Config{ReadQueueSize: 3, WriteQueueSize: 1})

	var rec recorder
	d.AsyncRead(make([]byte, 3), rec.handler())
	d.AsyncRead(make([]byte, 2), rec.handler())
	dev.FeedBytes([]byte("x"))

	if !d.CancelRead() {
		t.Fatal("CancelRead() = false, want true")
	}
	el.Drain()

	rec.expect(t,
		completion{pkg.StatusAborted, 1},
		completion{pkg.StatusAborted, 0},
	)
	if d.CancelRead() {
		t.Error("CancelRead() after cancel = true, want false")
	}
}

func TestQueuedRead_ShortCircuitChains(t *testing.T) {
	// A read-until short-circuit mid-interrupt must start the next
	// queued request, which then consumes the rest of the same burst.
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, Config{ReadQueueSize: 2, WriteQueueSize: 1})

	var rec recorder
	line := make([]byte, 8)
	pair := make([]byte, 2)
	d.AsyncReadUntil(line, newlinePred, rec.handler())
	d.AsyncRead(pair, rec.handler())

	dev.FeedBytes([]byte("x\nab"))
	el.Drain()

	rec.expect(t,
		completion{pkg.StatusSuccess, 2},
		completion{pkg.StatusSuccess, 2},
	)
	if string(line[:2]) != "x\n" {
		t.Errorf("line[:2] = %q, want %q", line[:2], "x\n")
	}
	if string(pair) != "ab" {
		t.Errorf("pair = %q, want %q", pair, "ab")
	}
}

func TestAsyncRead_PanicsWhenBusy(t *testing.T) {
	dev := sim.New()
	el := loop.New(8)
	d := New(dev, el, DefaultConfig())

	d.AsyncRead(make([]byte, 4), func(pkg.Status, int) {})

	defer func() {
		if recover() == nil {
			t.Error("second AsyncRead on a busy single-slot driver did not panic")
		}
	}()
	d.AsyncRead(make([]byte, 4), func(pkg.Status, int) {})
}

func TestQueuedReads_RandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(0x5eed))

	for trial := 0; trial < 50; trial++ {
		dev := sim.New()
		el := loop.New(32)
		d := New(dev, el, Config{ReadQueueSize: 8, WriteQueueSize: 1})

		var rec recorder
		count := 1 + rng.Intn(8)
		bufs := make([][]byte, count)
		var stream []byte
		for i := range bufs {
			bufs[i] = make([]byte, rng.Intn(6))
			for range bufs[i] {
				stream = append(stream, byte('A'+rng.Intn(26)))
			}
			d.AsyncRead(bufs[i], rec.handler())
		}

		// Deliver the whole stream in random-size bursts.
		for off := 0; off < len(stream); {
			n := 1 + rng.Intn(len(stream)-off)
			dev.FeedBytes(stream[off : off+n])
			off += n
		}
		el.Drain()

		if len(rec.events) != count {
			t.Fatalf("trial %d: %d completions, want %d", trial, len(rec.events), count)
		}
		var got []byte
		for i, ev := range rec.events {
			want := completion{pkg.StatusSuccess, len(bufs[i])}
			if ev != want {
				t.Fatalf("trial %d: completion[%d] = %v, want %v", trial, i, ev, want)
			}
			got = append(got, bufs[i]...)
		}
		if !bytes.Equal(got, stream) {
			t.Fatalf("trial %d: reassembled %q, want %q", trial, got, stream)
		}
	}
}

func TestQueuedReads_RandomPredicates(t *testing.T) {
	// Predicates that never match consume exactly the bytes a plain read
	// would, but complete with BufferOverflow instead of Success.
	rng := rand.New(rand.NewSource(0xfeed))
	never := func(byte) bool { return false }

	for trial := 0; trial < 20; trial++ {
		dev := sim.New()
		el := loop.New(16)
		d := New(dev, el, Config{ReadQueueSize: 4, WriteQueueSize: 1})

		var rec recorder
		size := 1 + rng.Intn(6)
		buf := make([]byte, size)
		d.AsyncReadUntil(buf, never, rec.handler())

		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(rng.Intn(256))
		}
		dev.FeedBytes(payload)
		el.Drain()

		rec.expect(t, completion{pkg.StatusBufferOverflow, size})
		if !bytes.Equal(buf, payload) {
			t.Fatalf("trial %d: buf = %v, want %v", trial, buf, payload)
		}
	}
}
