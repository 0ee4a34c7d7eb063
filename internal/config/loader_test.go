package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/macrolens/evhist/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MemoSize, convey.ShouldEqual, 60)
				convey.So(cfg.RefreshQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.RefreshWorkers, convey.ShouldEqual, 1)
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 300)
			})

			convey.Convey("Then data paths derive from the data directory", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogPath, convey.ShouldEqual,
					filepath.Join("data", "event_history_index", "event_history_by_event.ndjson"))
				convey.So(cfg.IndexPath, convey.ShouldEqual,
					filepath.Join("data", "event_history_index", "event_history_by_event.ndjson.index.json"))
				convey.So(cfg.CalendarDir, convey.ShouldEqual,
					filepath.Join("data", "Economic_Calendar"))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("EVHIST_ADDR", ":8080")
			_ = os.Setenv("EVHIST_DATA_DIR", "/var/lib/evhist")
			_ = os.Setenv("EVHIST_MEMO_SIZE", "120")
			_ = os.Setenv("EVHIST_REFRESH_WORKERS", "4")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MemoSize, convey.ShouldEqual, 120)
				convey.So(cfg.RefreshWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.LogPath, convey.ShouldEqual,
					filepath.Join("/var/lib/evhist", "event_history_index", "event_history_by_event.ndjson"))
			})
		})

		convey.Convey("When explicit paths are set", func() {
			_ = os.Setenv("EVHIST_LOG_PATH", "/tmp/log.ndjson")
			_ = os.Setenv("EVHIST_INDEX_PATH", "/tmp/log.index.json")
			_ = os.Setenv("EVHIST_CALENDAR_DIR", "/tmp/calendar")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then they win over the data directory layout", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogPath, convey.ShouldEqual, "/tmp/log.ndjson")
				convey.So(cfg.IndexPath, convey.ShouldEqual, "/tmp/log.index.json")
				convey.So(cfg.CalendarDir, convey.ShouldEqual, "/tmp/calendar")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
memo_size: 30
refresh_queue_size: 16
refresh_interval_seconds: 60
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("EVHIST_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MemoSize, convey.ShouldEqual, 30)
				convey.So(cfg.RefreshQueueSize, convey.ShouldEqual, 16)
				convey.So(cfg.RefreshIntervalSeconds, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
memo_size: 30
refresh_workers: 2
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("EVHIST_CONFIG", tmpFile)
			_ = os.Setenv("EVHIST_ADDR", ":8080") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")   // Overridden by env
				convey.So(cfg.MemoSize, convey.ShouldEqual, 30)    // From file
				convey.So(cfg.RefreshWorkers, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("EVHIST_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("EVHIST_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("EVHIST_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the data directory is emptied without explicit paths", func() {
			_ = os.Setenv("EVHIST_DATA_DIR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("EVHIST_MEMO_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"EVHIST_CONFIG",
		"EVHIST_ADDR",
		"EVHIST_DATA_DIR",
		"EVHIST_LOG_PATH",
		"EVHIST_INDEX_PATH",
		"EVHIST_CALENDAR_DIR",
		"EVHIST_MEMO_SIZE",
		"EVHIST_REFRESH_QUEUE_SIZE",
		"EVHIST_REFRESH_WORKERS",
		"EVHIST_REFRESH_INTERVAL_SECONDS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "evhist-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
