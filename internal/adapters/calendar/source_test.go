package calendar_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/macrolens/evhist/internal/adapters/calendar"
	"github.com/macrolens/evhist/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

func writeYear(t *testing.T, root string, year, name, content string) {
	t.Helper()
	dir := filepath.Join(root, year)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedNow(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestFileSource(t *testing.T) {
	Convey("Given a calendar root with year directories", t, func() {
		ctx := context.Background()
		root := t.TempDir()

		writeYear(t, root, "2024", "2024_calendar.json", `[
			{"Date":"2024-01-10","Time":"13:30","Event":"CPI (MoM)","Cur.":"usd","Imp.":"High","Actual":"3.1%","Forecast":"3.0%","Previous":"2.9%"},
			{"Date":"2024-01-09","Time":"","Event":"Bank Holiday","Cur.":"JPY"},
			{"Date":"","Time":"13:30","Event":"No Date"},
			{"Date":"2024-01-11","Time":"13:30","Event":""},
			{"Date":"bogus","Time":"13:30","Event":"Bad Date"}
		]`)

		src := calendar.NewFileSource(root, calendar.WithSourceNow(fixedNow(2024)))

		Convey("When loading all events", func() {
			events, err := src.All(ctx)

			Convey("Then valid rows parse and invalid rows are dropped", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
			})

			Convey("Then events are sorted by instant", func() {
				So(err, ShouldBeNil)
				So(events[0].Event, ShouldEqual, "Bank Holiday")
				So(events[1].Event, ShouldEqual, "CPI (MoM)")
				So(events[1].UTC, ShouldEqual, time.Date(2024, 1, 10, 13, 30, 0, 0, time.UTC))
			})

			Convey("Then blank times become all-day markers", func() {
				So(err, ShouldBeNil)
				So(events[0].TimeLabel, ShouldEqual, "All Day")
				So(events[0].UTC, ShouldEqual, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC))
			})

			Convey("Then currency is uppercased", func() {
				So(err, ShouldBeNil)
				So(events[1].Currency, ShouldEqual, "USD")
			})
		})

		Convey("When next year's directory is also mirrored", func() {
			writeYear(t, root, "2025", "2025_calendar.json", `[
				{"Date":"2025-02-01","Time":"09:00","Event":"GDP (QoQ)","Cur.":"EUR"}
			]`)

			events, err := src.All(ctx)

			Convey("Then both windows load", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 3)
				So(events[2].Event, ShouldEqual, "GDP (QoQ)")
			})
		})

		Convey("When neither current nor next year is mirrored", func() {
			old := calendar.NewFileSource(root, calendar.WithSourceNow(fixedNow(2030)))

			events, err := old.All(ctx)

			Convey("Then the latest available year is used", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
			})
		})

		Convey("When the conventional file name is absent", func() {
			alt := t.TempDir()
			writeYear(t, alt, "2024", "export.json", `[
				{"Date":"2024-03-01","Time":"10:00","Event":"Retail Sales m/m","Cur.":"GBP"}
			]`)

			events, err := calendar.NewFileSource(alt, calendar.WithSourceNow(fixedNow(2024))).All(ctx)

			Convey("Then the first JSON file in the directory is used", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
			})
		})

		Convey("When a year file is not a JSON array", func() {
			broken := t.TempDir()
			writeYear(t, broken, "2024", "2024_calendar.json", `{"not":"an array"}`)
			writeYear(t, broken, "2025", "2025_calendar.json", `[
				{"Date":"2025-01-01","Time":"00:00","Event":"New Year","Cur.":"USD"}
			]`)

			events, err := calendar.NewFileSource(broken, calendar.WithSourceNow(fixedNow(2024))).All(ctx)

			Convey("Then the broken file is skipped, not fatal", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
			})
		})

		Convey("When the calendar root does not exist", func() {
			events, err := calendar.NewFileSource(filepath.Join(root, "missing")).All(ctx)

			Convey("Then it yields no events and no error", func() {
				So(err, ShouldBeNil)
				So(events, ShouldBeNil)
			})
		})
	})
}
