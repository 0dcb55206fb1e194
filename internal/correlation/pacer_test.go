package correlation

import (
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/clock"
	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
	"github.com/YaganovValera/analytics-system/services/venue-client/pkg/logger"
)

type sentAt struct {
	at  time.Time
	env protocol.Envelope
}

func newTestPacer(t *testing.T, fail func(n int) bool) (*Pacer, *clock.Fake, *[]sentAt) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	var sent []sentAt
	n := 0
	send := func(b []byte) error {
		n++
		if fail != nil && fail(n) {
			return errors.New("broken pipe")
		}
		env, err := protocol.Unmarshal(b)
		if err != nil {
			t.Fatalf("unmarshal sent payload: %v", err)
		}
		sent = append(sent, sentAt{at: clk.Now(), env: env})
		return nil
	}
	return NewPacer(clk, send, PacerConfig{}, logger.NewNop()), clk, &sent
}

func TestPacer_TimingAndOrder(t *testing.T) {
	p, clk, sent := newTestPacer(t, nil)
	start := clk.Now()

	for i := 1; i <= 3; i++ {
		p.Enqueue(protocol.New(i))
	}
	clk.Advance(199 * time.Millisecond)
	if len(*sent) != 0 {
		t.Fatalf("sent before initial delay: %d", len(*sent))
	}
	clk.Advance(time.Millisecond)
	if len(*sent) != 1 {
		t.Fatalf("sent = %d after 200ms; want 1", len(*sent))
	}

	// Добавление в середине не сбивает темп.
	p.Enqueue(protocol.New(4))
	clk.Advance(time.Second)

	if len(*sent) != 4 {
		t.Fatalf("sent = %d; want 4", len(*sent))
	}
	wantOffsets := []time.Duration{200, 300, 400, 500}
	for i, s := range *sent {
		mti, _ := s.env.MessageType()
		if mti != i+1 {
			t.Errorf("sent[%d] MTI = %d; want %d", i, mti, i+1)
		}
		if got := s.at.Sub(start); got != wantOffsets[i]*time.Millisecond {
			t.Errorf("sent[%d] at %v; want %v", i, got, wantOffsets[i]*time.Millisecond)
		}
	}
	if p.Len() != 0 || clk.Pending() != 0 {
		t.Fatalf("queue %d, timers %d after drain", p.Len(), clk.Pending())
	}
}

func TestPacer_NeverCloserThanInterval(t *testing.T) {
	p, clk, sent := newTestPacer(t, nil)

	// Произвольное чередование Enqueue и времени.
	steps := []time.Duration{0, 50, 0, 130, 0, 0, 220, 10, 0, 400}
	mti := 0
	for _, d := range steps {
		clk.Advance(d * time.Millisecond)
		mti++
		p.Enqueue(protocol.New(mti))
	}
	clk.Advance(5 * time.Second)

	if len(*sent) != mti {
		t.Fatalf("sent = %d; want %d", len(*sent), mti)
	}
	for i := 1; i < len(*sent); i++ {
		gap := (*sent)[i].at.Sub((*sent)[i-1].at)
		if gap < 100*time.Millisecond {
			t.Fatalf("gap %d = %v; below interval", i, gap)
		}
		prev, _ := (*sent)[i-1].env.MessageType()
		cur, _ := (*sent)[i].env.MessageType()
		if cur != prev+1 {
			t.Fatalf("FIFO broken: %d after %d", cur, prev)
		}
	}
}

func TestPacer_IdleRestartsWithInitialDelay(t *testing.T) {
	p, clk, sent := newTestPacer(t, nil)
	p.Enqueue(protocol.New(1))
	clk.Advance(time.Second)
	start := clk.Now()

	p.Enqueue(protocol.New(2))
	clk.Advance(time.Second)
	if got := (*sent)[1].at.Sub(start); got != 200*time.Millisecond {
		t.Fatalf("after idle sent at +%v; want +200ms", got)
	}
}

func TestPacer_SendFailureDoesNotStall(t *testing.T) {
	p, clk, sent := newTestPacer(t, func(n int) bool { return n == 1 })
	p.Enqueue(protocol.New(1))
	p.Enqueue(protocol.New(2))
	clk.Advance(time.Second)

	if len(*sent) != 1 {
		t.Fatalf("sent = %d; want 1", len(*sent))
	}
	if mti, _ := (*sent)[0].env.MessageType(); mti != 2 {
		t.Fatalf("MTI = %d; failed message must not be re-queued", mti)
	}
}

func TestPacer_CustomDelays(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var times []time.Duration
	p := NewPacer(clk, func([]byte) error {
		times = append(times, clk.Now().Sub(time.Unix(0, 0)))
		return nil
	}, PacerConfig{InitialDelay: 50 * time.Millisecond, Interval: 20 * time.Millisecond}, logger.NewNop())

	p.Enqueue(protocol.New(1))
	p.Enqueue(protocol.New(2))
	clk.Advance(time.Second)
	if len(times) != 2 || times[0] != 50*time.Millisecond || times[1] != 70*time.Millisecond {
		t.Fatalf("times = %v", times)
	}
}
