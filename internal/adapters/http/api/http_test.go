package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/macrolens/evhist/internal/adapters/http/api"
	"github.com/macrolens/evhist/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing

type mockEngine struct {
	result        model.Result
	err           error
	acceptReindex bool

	lookups   [][2]string
	reindexes int
}

func (m *mockEngine) Lookup(ctx context.Context, currency, eventName string) (model.Result, error) {
	m.lookups = append(m.lookups, [2]string{currency, eventName})
	return m.result, m.err
}

func (m *mockEngine) RequestReindex(ctx context.Context) bool {
	m.reindexes++
	return m.acceptReindex
}

type mockStats struct{}

func (m *mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "memoEntries": 2}
}

func newTestServer(engine *mockEngine) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(engine, &mockStats{}).Register(context.Background(), mux)
	return mux
}

func TestHandleGetHistory(t *testing.T) {
	Convey("Given the history endpoint", t, func() {
		engine := &mockEngine{
			result: model.Result{
				OK:       true,
				EventID:  "USD::CPI m/m::m/m",
				Currency: "USD",
				Cached:   true,
				Points: []model.HistoryPoint{
					{Date: "2024-01-10", Time: "13:30", Actual: "3.1%", Forecast: "3.0%", Previous: "2.9%"},
				},
			},
		}
		mux := newTestServer(engine)

		Convey("When querying with currency and event", func() {
			req := httptest.NewRequest(http.MethodGet, "/history?cur=USD&event=CPI+m%2Fm", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the engine result is returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got model.Result
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got.OK, ShouldBeTrue)
				So(got.EventID, ShouldEqual, "USD::CPI m/m::m/m")
				So(len(got.Points), ShouldEqual, 1)
			})

			Convey("Then the handler forwards the decoded query values", func() {
				So(engine.lookups, ShouldHaveLength, 1)
				So(engine.lookups[0][0], ShouldEqual, "USD")
				So(engine.lookups[0][1], ShouldEqual, "CPI m/m")
			})

			Convey("Then a request id is attached to the response", func() {
				So(rec.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
			})
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/history?cur=USD&event=CPI", nil)
			req.Header.Set("X-Request-ID", "abc-123")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
		})

		Convey("When a miss comes back from the engine", func() {
			engine.result = model.Result{OK: false, Message: "nothing found"}

			req := httptest.NewRequest(http.MethodGet, "/history?cur=CHF&event=Unknown", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the miss is still a 200", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got model.Result
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got.OK, ShouldBeFalse)
				So(got.Message, ShouldEqual, "nothing found")
			})
		})

		Convey("When the currency is blank", func() {
			req := httptest.NewRequest(http.MethodGet, "/history?cur=++&event=CPI", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the request is rejected before the engine runs", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(engine.lookups, ShouldBeEmpty)
			})
		})

		Convey("When the event parameter is missing", func() {
			req := httptest.NewRequest(http.MethodGet, "/history?cur=USD", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the engine fails", func() {
			engine.err = context.DeadlineExceeded

			req := httptest.NewRequest(http.MethodGet, "/history?cur=USD&event=CPI", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When using the wrong method", func() {
			req := httptest.NewRequest(http.MethodPost, "/history?cur=USD&event=CPI", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHandlePostReindex(t *testing.T) {
	Convey("Given the reindex endpoint", t, func() {
		engine := &mockEngine{acceptReindex: true}
		mux := newTestServer(engine)

		Convey("When posting a reindex request", func() {
			req := httptest.NewRequest(http.MethodPost, "/reindex", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the job is accepted asynchronously", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(engine.reindexes, ShouldEqual, 1)
			})
		})

		Convey("When the refresh queue is saturated", func() {
			engine.acceptReindex = false

			req := httptest.NewRequest(http.MethodPost, "/reindex", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("When using GET", func() {
			req := httptest.NewRequest(http.MethodGet, "/reindex", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHandleStats(t *testing.T) {
	Convey("Given the stats endpoint", t, func() {
		mux := newTestServer(&mockEngine{})

		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		Convey("Then the provider's snapshot is served", func() {
			So(rec.Code, ShouldEqual, http.StatusOK)

			var got map[string]interface{}
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(got["started"], ShouldEqual, true)
		})
	})
}

func TestHandleHealth(t *testing.T) {
	Convey("Given the health endpoint", t, func() {
		mux := newTestServer(&mockEngine{})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		Convey("Then it serves scrapeable metrics", func() {
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "evhist_history")
		})
	})
}
