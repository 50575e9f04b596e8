package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/harmony/common/id"
	"basegraph.app/harmony/internal/http/dto"
	"basegraph.app/harmony/internal/http/handler"
	"basegraph.app/harmony/internal/model"
	"basegraph.app/harmony/internal/queue"
)

var _ = Describe("RunHandler", func() {
	var (
		router   *gin.Engine
		runs     *mockRunStore
		events   *mockRunEventStore
		producer *mockProducer
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Trace-ID", "trace-abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		Expect(id.Init(1)).To(Succeed())
		gin.SetMode(gin.TestMode)
		router = gin.New()
		runs = &mockRunStore{}
		events = &mockRunEventStore{}
		producer = &mockProducer{}

		h := handler.NewRunHandler(runs, events, producer, "X-Trace-ID")
		router.POST("/runs", h.Create)
		router.GET("/runs/:run_id", h.Get)
		router.GET("/runs/:run_id/events", h.ListEvents)
	})

	Describe("Create", func() {
		It("queues the run and returns 202", func() {
			w := do(http.MethodPost, "/runs", `{"goal":"  build a parser  "}`)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp dto.CreateRunResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.RunID).NotTo(BeEmpty())
			Expect(resp.Status).To(Equal(model.RunStatusQueued))
			Expect(resp.StreamURL).To(Equal("/api/v1/runs/" + resp.RunID + "/stream"))

			Expect(producer.jobs).To(HaveLen(1))
			job := producer.jobs[0]
			Expect(dto.FormatID(job.RunID)).To(Equal(resp.RunID))
			Expect(job.Goal).To(Equal("build a parser"))
			Expect(job.TaskType).To(Equal(queue.TaskTypeRun))
			Expect(job.TraceID).NotTo(BeNil())
			Expect(*job.TraceID).To(Equal("trace-abc"))
		})

		It("queues a plan task when plan_only is set", func() {
			w := do(http.MethodPost, "/runs", `{"goal":"g","plan_only":true}`)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(producer.jobs[0].TaskType).To(Equal(queue.TaskTypePlan))
		})

		It("returns 400 on invalid body", func() {
			w := do(http.MethodPost, "/runs", `{`)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.jobs).To(BeEmpty())
		})

		It("returns 400 on a blank goal", func() {
			w := do(http.MethodPost, "/runs", `{"goal":"   "}`)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.jobs).To(BeEmpty())
		})

		It("returns 500 when the run cannot be stored", func() {
			runs.createFn = func(context.Context, *model.Run) (*model.Run, error) {
				return nil, errors.New("connection refused")
			}

			w := do(http.MethodPost, "/runs", `{"goal":"g"}`)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(producer.jobs).To(BeEmpty())
		})

		It("marks the run failed and returns 503 when enqueueing fails", func() {
			producer.enqueueFn = func(context.Context, queue.PlanJob) error {
				return errors.New("redis down")
			}

			w := do(http.MethodPost, "/runs", `{"goal":"g"}`)

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(runs.finished).To(HaveLen(1))
			Expect(runs.finished).To(ContainElement(model.RunStatusFailed))
		})
	})

	Describe("Get", func() {
		It("returns the run", func() {
			runs.getByIDFn = func(_ context.Context, runID int64) (*model.Run, error) {
				return &model.Run{
					ID:        runID,
					Goal:      "g",
					Status:    model.RunStatusPartial,
					Attempt:   2,
					Report:    json.RawMessage(`{"status":"partial"}`),
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}

			w := do(http.MethodGet, "/runs/9007199254740993", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp dto.RunResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.RunID).To(Equal("9007199254740993"))
			Expect(resp.Status).To(Equal(model.RunStatusPartial))
			Expect(string(resp.Report)).To(MatchJSON(`{"status":"partial"}`))
		})

		It("returns 404 for an unknown run", func() {
			w := do(http.MethodGet, "/runs/12", "")

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			w := do(http.MethodGet, "/runs/abc", "")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("ListEvents", func() {
		It("pages events after the cursor", func() {
			var gotAfter int64
			var gotLimit int32
			events.listFn = func(_ context.Context, _ int64, afterID int64, limit int32) ([]model.RunEvent, error) {
				gotAfter, gotLimit = afterID, limit
				return []model.RunEvent{
					{ID: 11, RunID: 5, Type: "wave_start", Fields: json.RawMessage(`{"wave":0}`)},
					{ID: 12, RunID: 5, Type: "wave_complete"},
				}, nil
			}

			w := do(http.MethodGet, "/runs/5/events?after_id=10&limit=50", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotAfter).To(Equal(int64(10)))
			Expect(gotLimit).To(Equal(int32(50)))
			var resp dto.ListRunEventsResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Events).To(HaveLen(2))
			Expect(resp.Events[0].Type).To(Equal("wave_start"))
			Expect(resp.NextAfterID).To(Equal(int64(12)))
		})

		It("keeps the cursor on an empty page", func() {
			w := do(http.MethodGet, "/runs/5/events?after_id=40", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp dto.ListRunEventsResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Events).To(BeEmpty())
			Expect(resp.NextAfterID).To(Equal(int64(40)))
		})

		It("caps the page size", func() {
			var gotLimit int32
			events.listFn = func(_ context.Context, _, _ int64, limit int32) ([]model.RunEvent, error) {
				gotLimit = limit
				return nil, nil
			}

			do(http.MethodGet, "/runs/5/events?limit=100000", "")

			Expect(gotLimit).To(Equal(int32(1000)))
		})

		It("returns 400 on a bad cursor", func() {
			w := do(http.MethodGet, "/runs/5/events?after_id=x", "")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
