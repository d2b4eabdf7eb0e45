package invalidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := Message{Origin: "a", Tables: []string{"PERSON", "ORDERS"}, At: at}
	payload, err := Encode(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := Decode(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Origin != in.Origin || !out.At.Equal(at) {
		t.Fatalf("Decode() = %+v, want %+v", out, in)
	}
	if diff := cmp.Diff(in.Tables, out.Tables); diff != "" {
		t.Fatalf("tables mismatch (-want +got):\n%s", diff)
	}
	if out.All() {
		t.Error("All() = true for a message with tables")
	}

	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Error("expected error for garbage payload")
	}
	empty, _ := Encode(Message{})
	if _, err := Decode(empty); err == nil {
		t.Error("expected error for message without origin")
	}
}

func TestRedisBus_Propagates(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	originA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	a := NewRedisBus(newClient(t, mr), WithChannel("test:inv"), WithOrigin(originA))
	b := NewRedisBus(newClient(t, mr), WithChannel("test:inv"))
	if a.Origin() != originA.String() || a.Channel() != "test:inv" {
		t.Fatalf("unexpected bus identity %s on %s", a.Origin(), a.Channel())
	}

	received := make(chan Message, 4)
	subA, err := a.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	subB, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 2)
	go func() { done <- subA.Run(runCtx, func(_ context.Context, m Message) { received <- m }) }()
	go func() {
		done <- subB.Run(runCtx, func(_ context.Context, m Message) {
			m.Origin = "b saw " + m.Origin
			received <- m
		})
	}()

	if err := a.Publish(ctx, []string{"PERSON"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Publish(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []Message
	for len(got) < 2 {
		select {
		case m := <-received:
			got = append(got, m)
		case <-ctx.Done():
			t.Fatalf("timed out after %d messages", len(got))
		}
	}
	if got[0].Origin != "b saw "+originA.String() || got[1].Origin != got[0].Origin {
		t.Fatalf("messages delivered to the wrong subscriber: %+v", got)
	}
	if diff := cmp.Diff([]string{"PERSON"}, got[0].Tables); diff != "" {
		t.Fatalf("tables mismatch (-want +got):\n%s", diff)
	}
	if !got[1].All() {
		t.Fatalf("second message should invalidate everything: %+v", got[1])
	}

	stop()
	for i := 0; i < 2; i++ {
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	}
	select {
	case m := <-received:
		t.Fatalf("publisher received its own message: %+v", m)
	default:
	}
	_ = subA.Close()
	_ = subB.Close()
}

func TestRedisBus_SkipsGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := newClient(t, mr)
	bus := NewRedisBus(client)
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Close()

	received := make(chan Message, 1)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = sub.Run(runCtx, func(_ context.Context, m Message) { received <- m }) }()

	if err := client.Publish(ctx, DefaultChannel, "not msgpack").Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	remote := NewRedisBus(newClient(t, mr))
	if err := remote.Publish(ctx, []string{"T"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case m := <-received:
		if m.Origin != remote.Origin() {
			t.Fatalf("unexpected origin %s", m.Origin)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBus_PublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	mr.Close()

	bus := NewRedisBus(client)
	if err := bus.Publish(context.Background(), []string{"T"}); err == nil {
		t.Fatal("expected error publishing to a stopped server")
	}
}
