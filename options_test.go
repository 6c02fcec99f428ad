package jobcue

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		env := newTestEnv(t, WithLogger(logger))

		if env.client.logger != logger {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", logger, env.client.logger)
		}

		env.client.logger.Info("test log message")
		if !strings.Contains(buf.String(), "test log message") {
			t.Fatalf("\nwanted:\nlog output containing 'test log message'\ngot:\n%q", buf.String())
		}
	})

	t.Run("handles nil logger safely", func(t *testing.T) {
		env := newTestEnv(t, WithLogger(nil))

		if env.client.logger == nil {
			t.Fatalf("\nwanted:\nnon-nil logger\ngot:\nnil")
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("\nwanted:\nno panic\ngot:\n%v", r)
			}
		}()

		env.client.logger.Info("safe check")
	})
}

func TestNew(t *testing.T) {
	t.Run("should require a base url", func(t *testing.T) {
		_, err := New(WithQueueRepository(&memoryStore{}))
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should reuse the queue store for credentials and dead letters", func(t *testing.T) {
		env := newTestEnv(t)

		if env.client.credRepo != env.store {
			t.Fatalf("expected the queue store to back credentials")
		}
		if env.client.DeadLetters() != env.store {
			t.Fatalf("expected the queue store to back dead letters")
		}
	})

	t.Run("should exclude auth paths from the queue scope by default", func(t *testing.T) {
		env := newTestEnv(t)

		if env.client.Scope().Matches("/auth/login") {
			t.Fatalf("expected /auth/login to be out of scope")
		}
		if !env.client.Scope().Matches("/jobs") {
			t.Fatalf("expected /jobs to be in scope")
		}
	})

	t.Run("should tolerate a scope rule duplicated by the config", func(t *testing.T) {
		newTestEnv(t, WithScopeRule("^/auth/", true))
	})

	t.Run("should open the sqlite store from the config dir", func(t *testing.T) {
		dir := t.TempDir()

		client, err := New(WithConfigDir(dir), WithBaseURL(testBaseURL))
		if err != nil {
			t.Fatalf("creating client: %v", err)
		}
		defer client.Close()

		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
			t.Fatalf("expected config file to be written: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, sqliteFile)); err != nil {
			t.Fatalf("expected sqlite store to be created: %v", err)
		}
	})

	t.Run("should open the badger store when configured", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("loading config: %v", err)
		}
		cfg.Store.Driver = DriverBadger

		client, err := New(WithConfig(cfg), WithBaseURL(testBaseURL))
		if err != nil {
			t.Fatalf("creating client: %v", err)
		}
		defer client.Close()

		if _, err := os.Stat(filepath.Join(dir, badgerFolder)); err != nil {
			t.Fatalf("expected badger directory to be created: %v", err)
		}
	})
}
