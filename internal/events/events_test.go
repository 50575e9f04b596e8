package events_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/harmony/internal/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Emitter", func() {
	ctx := context.Background()

	It("stamps events with the run id and time", func() {
		rec := &events.Recorder{}
		e := events.NewEmitter(rec, 7)
		e.Emit(ctx, events.PlanWinner, events.Fields{"score": 85.0})

		got := rec.Events()
		Expect(got).To(HaveLen(1))
		Expect(got[0].Type).To(Equal(events.PlanWinner))
		Expect(got[0].RunID).To(Equal(int64(7)))
		Expect(got[0].Time).NotTo(BeZero())
		Expect(got[0].Fields).To(HaveKeyWithValue("score", 85.0))
	})

	It("swallows sink errors", func() {
		e := events.NewEmitter(events.SinkFunc(func(context.Context, events.Event) error {
			return errors.New("sink down")
		}), 1)
		Expect(func() { e.Emit(ctx, events.WaveStart, nil) }).NotTo(Panic())
	})

	It("swallows sink panics", func() {
		e := events.NewEmitter(events.SinkFunc(func(context.Context, events.Event) error {
			panic("bad sink")
		}), 1)
		Expect(func() { e.Emit(ctx, events.WaveStart, nil) }).NotTo(Panic())
	})

	It("discards on a nil or empty emitter", func() {
		var nilEmitter *events.Emitter
		Expect(func() { nilEmitter.Emit(ctx, events.WaveStart, nil) }).NotTo(Panic())
		Expect(func() { events.Discard().Emit(ctx, events.WaveStart, nil) }).NotTo(Panic())
		Expect(nilEmitter.RunID()).To(BeZero())
	})
})

var _ = Describe("Multi", func() {
	It("delivers to every sink and joins errors", func() {
		a, b := &events.Recorder{}, &events.Recorder{}
		failing := events.SinkFunc(func(context.Context, events.Event) error { return errors.New("nope") })

		err := events.Multi(a, failing, nil, b).Emit(context.Background(), events.Event{Type: events.WaveComplete})
		Expect(err).To(MatchError("nope"))
		Expect(a.Types()).To(Equal([]events.Type{events.WaveComplete}))
		Expect(b.Types()).To(Equal([]events.Type{events.WaveComplete}))
	})
})

var _ = Describe("Async", func() {
	It("delivers events off the caller goroutine", func() {
		rec := &events.Recorder{}
		a := events.NewAsync(rec, 16)
		for range 5 {
			Expect(a.Emit(context.Background(), events.Event{Type: events.ArtifactStarted})).To(Succeed())
		}

		Eventually(func() int { return len(rec.Events()) }).Should(Equal(5))
		Expect(a.Close(context.Background())).To(Succeed())
	})

	It("drops instead of blocking when the buffer is full", func() {
		release := make(chan struct{})
		var once sync.Once
		started := make(chan struct{})
		slow := events.SinkFunc(func(context.Context, events.Event) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		})

		a := events.NewAsync(slow, 1)
		Expect(a.Emit(context.Background(), events.Event{Type: events.WaveStart})).To(Succeed())
		Eventually(started).Should(BeClosed())

		Expect(a.Emit(context.Background(), events.Event{Type: events.WaveStart})).To(Succeed())
		Expect(a.Emit(context.Background(), events.Event{Type: events.WaveStart})).To(Succeed())
		Expect(a.Dropped()).To(Equal(int64(1)))

		close(release)
		Expect(a.Close(context.Background())).To(Succeed())
	})
})

var _ = Describe("LogSink", func() {
	It("logs the event type and sorted fields", func() {
		var buf bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
		DeferCleanup(func() { slog.SetDefault(prev) })

		Expect(events.LogSink{Level: slog.LevelInfo}.Emit(context.Background(), events.Event{
			Type:   events.ArtifactFailed,
			Fields: events.Fields{"reason": "timeout", "artifact_id": "API"},
		})).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("event_type=artifact_failed artifact_id=API reason=timeout"))
	})
})

var _ = Describe("stream encoding", func() {
	It("round trips an event through stream values", func() {
		in := events.Event{
			Type:   events.ExpansionRound,
			Time:   time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
			RunID:  99,
			Fields: events.Fields{"round": 2.0, "added": "Docs"},
		}
		values, err := events.StreamValues(in)
		Expect(err).NotTo(HaveOccurred())

		out, err := events.ParseStreamValues(values)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Type).To(Equal(in.Type))
		Expect(out.Time.Equal(in.Time)).To(BeTrue())
		Expect(out.RunID).To(Equal(int64(99)))
		Expect(out.Fields).To(Equal(in.Fields))
	})

	It("names one stream per run", func() {
		Expect(events.StreamName("harmony:events", 42)).To(Equal("harmony:events:run-42"))
	})

	It("rejects entries without a type", func() {
		_, err := events.ParseStreamValues(map[string]any{"run_id": "1"})
		Expect(err).To(HaveOccurred())
	})
})
