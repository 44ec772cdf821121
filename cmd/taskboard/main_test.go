package main

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestParseDue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{"date", "2024-02-01", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), false},
		{"date and time", "2024-02-01T09:30", time.Date(2024, time.February, 1, 9, 30, 0, 0, time.UTC), false},
		{"garbage", "next tuesday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDue(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse due: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartServerReportsListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	logger, hook := logtest.NewNullLogger()
	srv := &http.Server{Addr: busy.Addr().String(), Handler: http.NotFoundHandler()}

	select {
	case err := <-startServer(srv, logrus.NewEntry(logger)):
		if err == nil {
			t.Fatalf("expected a listen error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for listen error")
	}

	last := hook.LastEntry()
	if last == nil || last.Level != logrus.ErrorLevel || last.Message != "web server error" {
		t.Fatalf("expected the listen failure to be logged, got %+v", last)
	}
}

func TestRunReturnsErrors(t *testing.T) {
	for _, key := range []string{"TASKBOARD_AUTH_SECRET", "TASKBOARD_DB_DRIVER", "TASKBOARD_DB_DSN"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	dbPath := filepath.Join(dir, "tasks.db")

	if err := run([]string{"-config", cfgPath, "-db", dbPath, "-add", "Pay rent", "-due", "someday"}); err == nil {
		t.Fatalf("expected invalid -due to be returned as an error")
	}
	if err := run([]string{"-config", cfgPath, "-db", dbPath, "-token"}); err == nil {
		t.Fatalf("expected -token without a secret to fail")
	}
	if err := run([]string{"-config", cfgPath, "-db", dbPath, "-add", "Pay rent", "-due", "2024-01-01"}); err != nil {
		t.Fatalf("add task: %v", err)
	}

	conn, err := db.Open(db.Options{Driver: db.DriverSQLite, DSN: dbPath})
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer conn.Close()

	tasks, err := db.NewStore(conn).ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "Pay rent" {
		t.Fatalf("expected only the valid task to be stored, got %+v", tasks)
	}
}
