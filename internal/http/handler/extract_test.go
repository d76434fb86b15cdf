package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/internal/http/handler"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/service"
)

var _ = Describe("ExtractHandler", func() {
	var (
		router *gin.Engine
		svc    *mockExtractService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockExtractService{}
		h := handler.NewExtractHandler(svc, "X-Trace-Id")
		router.POST("/extract", h.Start)
		router.GET("/extract/:id", h.Get)
	})

	post := func(body string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Start", func() {
		It("returns 202 with the run id", func() {
			var got service.ExtractParams
			svc.startFn = func(_ context.Context, params service.ExtractParams) (*model.IngestRun, error) {
				got = params
				return &model.IngestRun{ID: 1234567890123, Status: model.RunStatusQueued}, nil
			}

			w := post(`{"channel_id":"C1","months_history":6}`, "X-Trace-Id", "trace-1")

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["run_id"]).To(Equal("1234567890123"))
			Expect(resp["status"]).To(Equal("queued"))
			Expect(got.ChannelID).To(Equal("C1"))
			Expect(got.MonthsHistory).To(Equal(6))
			Expect(*got.TraceID).To(Equal("trace-1"))
		})

		It("leaves months unset when omitted", func() {
			var got service.ExtractParams
			svc.startFn = func(_ context.Context, params service.ExtractParams) (*model.IngestRun, error) {
				got = params
				return &model.IngestRun{ID: 1}, nil
			}

			w := post(`{"channel_id":"C1"}`)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(got.MonthsHistory).To(BeZero())
			Expect(got.TraceID).To(BeNil())
		})

		DescribeTable("rejects invalid bodies",
			func(body string) {
				called := false
				svc.startFn = func(context.Context, service.ExtractParams) (*model.IngestRun, error) {
					called = true
					return nil, nil
				}

				w := post(body)

				Expect(w.Code).To(Equal(http.StatusBadRequest))
				Expect(called).To(BeFalse())
			},
			Entry("malformed json", `{`),
			Entry("missing channel", `{"months_history":3}`),
			Entry("zero months", `{"channel_id":"C1","months_history":0}`),
			Entry("too many months", `{"channel_id":"C1","months_history":13}`),
		)

		It("maps service validation errors to 400", func() {
			svc.startFn = func(context.Context, service.ExtractParams) (*model.IngestRun, error) {
				return nil, service.ErrMissingChannel
			}

			Expect(post(`{"channel_id":"  "}`).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when the run cannot be queued", func() {
			svc.startFn = func(context.Context, service.ExtractParams) (*model.IngestRun, error) {
				return nil, errors.New("redis down")
			}

			Expect(post(`{"channel_id":"C1"}`).Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		It("returns the run", func() {
			svc.getFn = func(_ context.Context, runID int64) (*model.IngestRun, error) {
				Expect(runID).To(Equal(int64(42)))
				return &model.IngestRun{ID: 42, ChannelID: "C1", Status: model.RunStatusSucceeded, ThreadsProcessed: 9}, nil
			}

			w := get("/extract/42")

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal("succeeded"))
			Expect(resp["threads_processed"]).To(BeEquivalentTo(9))
		})

		It("returns 404 for unknown runs", func() {
			Expect(get("/extract/42").Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for non-numeric ids", func() {
			Expect(get("/extract/abc").Code).To(Equal(http.StatusBadRequest))
		})
	})
})
