package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrStalled is returned by Start when a message kept failing. Its offset is
// never committed, so the group resumes from it after a restart.
var ErrStalled = errors.New("consumer stalled on a failing message")

// Handler must return nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       Reader
	workers int
	// Retries is how many extra attempts a failing message gets before the
	// consumer stops with ErrStalled.
	Retries int
	Backoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return NewConsumerFromReader(r, workers)
}

func NewConsumerFromReader(r Reader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, Retries: 3, Backoff: 200 * time.Millisecond}
}

// Start fetches until ctx is done, fanning messages out to the workers.
// Messages of one partition key always go to the same worker. Offsets are
// committed per partition only up to the last message before the oldest one
// still in flight, so a message that exhausts its retries is never skipped:
// Start returns ErrStalled and the group redelivers it on the next run.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	offsets := newOffsetTracker()

	jobs := make([]chan *inflight, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan *inflight, 128)
		wg.Add(1)
		go func(in <-chan *inflight) {
			defer wg.Done()
			for f := range in {
				if runCtx.Err() != nil {
					continue
				}
				if err := c.process(runCtx, h, f.msg); err != nil {
					if runCtx.Err() != nil {
						continue
					}
					cancel(fmt.Errorf("%w: topic=%s partition=%d offset=%d: %v",
						ErrStalled, f.msg.Topic, f.msg.Partition, f.msg.Offset, err))
					continue
				}
				c.commit(runCtx, offsets, f)
			}
		}(jobs[i])
	}
	stop := func() error {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
		if cause := context.Cause(runCtx); errors.Is(cause, ErrStalled) {
			return cause
		}
		return nil
	}

	for {
		m, err := c.r.FetchMessage(runCtx)
		if err != nil {
			if stalled := stop(); stalled != nil {
				return stalled
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		f := offsets.track(m)
		select {
		case jobs[worker(m.Key, c.workers)] <- f:
		case <-runCtx.Done():
			return stop()
		}
	}
}

// process runs the handler with bounded retries and returns the last error
// when every attempt failed.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		log.Printf("worker error topic=%s offset=%d attempt=%d: %v", m.Topic, m.Offset, attempt+1, err)
		if attempt == c.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Backoff * time.Duration(attempt+1)):
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, offsets *offsetTracker, f *inflight) {
	offsets.mu.Lock()
	defer offsets.mu.Unlock()
	m, ok := offsets.doneLocked(f)
	if !ok {
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		log.Printf("commit offset %d failed: %v", m.Offset, err)
	}
}

type partition struct {
	topic string
	id    int
}

type inflight struct {
	msg  kafka.Message
	done bool
}

// offsetTracker keeps fetched messages per partition in fetch order.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[partition][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: make(map[partition][]*inflight)}
}

func (t *offsetTracker) track(m kafka.Message) *inflight {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &inflight{msg: m}
	p := partition{m.Topic, m.Partition}
	t.pending[p] = append(t.pending[p], f)
	return f
}

// doneLocked marks f processed and pops the finished prefix of its
// partition. It returns the last popped message, which is the one to commit.
func (t *offsetTracker) doneLocked(f *inflight) (kafka.Message, bool) {
	f.done = true
	p := partition{f.msg.Topic, f.msg.Partition}
	queue := t.pending[p]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := queue[n-1].msg
	t.pending[p] = queue[n:]
	return last, true
}

func worker(key []byte, n int) int {
	if n <= 1 || len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}
