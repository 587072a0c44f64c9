package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeReader{msgs: ch}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestMessageHeaderCodec(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &Message{ID: "sub-1", Body: []byte(`{"a":1}`), Timestamp: ts, RetryCount: 2, MaxRetries: 5}
	in.SetHeader("contest_id", "9")

	km := toKafkaMessage("judge.verdict", in)
	if string(km.Key) != "sub-1" || km.Topic != "judge.verdict" {
		t.Fatalf("unexpected kafka message: %+v", km)
	}

	out := fromKafkaMessage(km)
	if out.ID != "sub-1" || string(out.Body) != `{"a":1}` {
		t.Fatalf("unexpected decoded message: %+v", out)
	}
	if !out.Timestamp.Equal(ts) || out.RetryCount != 2 || out.MaxRetries != 5 {
		t.Fatalf("expected metadata to survive, got %+v", out)
	}
	if out.Headers["contest_id"] != "9" {
		t.Fatalf("expected custom header, got %v", out.Headers)
	}
	if _, ok := out.Headers[headerID]; ok {
		t.Fatalf("expected reserved headers to be stripped")
	}
}

func TestHandleMessageRetriesThenCommits(t *testing.T) {
	reader := newFakeReader()
	q := &KafkaQueue{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	sub := &kafkaSubscription{
		topic: "judge.verdict",
		opts:  SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, Concurrency: 1},
		handler: func(context.Context, *Message) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
		reader: reader,
		ctx:    ctx,
	}

	q.handleMessage(sub, toKafkaMessage("judge.verdict", NewMessage("s1", nil)))
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if reader.commits() != 1 {
		t.Fatalf("expected one commit, got %d", reader.commits())
	}
}

func TestHandleMessageGivesUp(t *testing.T) {
	reader := newFakeReader()
	q := &KafkaQueue{}
	attempts := 0
	sub := &kafkaSubscription{
		opts: SubscribeOptions{MaxRetries: 1, RetryDelay: time.Millisecond},
		handler: func(context.Context, *Message) error {
			attempts++
			return errors.New("permanent")
		},
		reader: reader,
		ctx:    context.Background(),
	}

	q.handleMessage(sub, toKafkaMessage("t", NewMessage("s1", nil)))
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if reader.commits() != 1 {
		t.Fatalf("expected poisoned message to be committed, got %d", reader.commits())
	}
}

func TestSubscriptionDeliversAndStops(t *testing.T) {
	reader := newFakeReader(
		toKafkaMessage("t", NewMessage("a", []byte("1"))),
		toKafkaMessage("t", NewMessage("b", []byte("2"))),
	)
	q := &KafkaQueue{newReader: func(string, string) messageReader { return reader }}

	got := make(chan string, 2)
	err := q.SubscribeWithOptions(context.Background(), "t", func(_ context.Context, m *Message) error {
		got <- m.ID
		return nil
	}, &SubscribeOptions{Concurrency: 2})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-got:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both messages, got %v", seen)
	}

	if err := q.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !reader.closed {
		t.Fatalf("expected reader to be closed on stop")
	}
	if reader.commits() != 2 {
		t.Fatalf("expected 2 commits, got %d", reader.commits())
	}
}
