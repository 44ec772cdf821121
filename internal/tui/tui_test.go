package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/Joseda-hg/taskboard/internal/model"
)

type fakeNotifier struct {
	sent []int64
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, task model.Task) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, task.ID)
	return nil
}

func TestLoadTasksOrdersByDue(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	createTask(t, store, "early", 2024, time.January, 1)
	createTask(t, store, "late", 2024, time.March, 1)

	ui := newTestUI(store, &fakeNotifier{})
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(ui.tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(ui.tasks))
	}
	if ui.tasks[0].Description != "late" {
		t.Fatalf("expected latest due first, got %q", ui.tasks[0].Description)
	}
}

func TestToggleTask(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created := createTask(t, store, "toggle", 2024, time.May, 1)

	ui := newTestUI(store, &fakeNotifier{})
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}

	t.Run("enable", func(t *testing.T) {
		if err := ui.toggleTask(nil, nil); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if !completed(t, store, created.ID) {
			t.Fatalf("expected task to be completed")
		}
		if !ui.tasks[0].Completed {
			t.Fatalf("expected list to be reloaded")
		}
		if !strings.Contains(ui.status, "done") {
			t.Fatalf("unexpected status %q", ui.status)
		}
	})

	t.Run("disable", func(t *testing.T) {
		if err := ui.toggleTask(nil, nil); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if completed(t, store, created.ID) {
			t.Fatalf("expected task to be open")
		}
	})
}

func TestToggleKeepsSelection(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	createTask(t, store, "first", 2024, time.June, 1)
	second := createTask(t, store, "second", 2024, time.January, 1)

	ui := newTestUI(store, &fakeNotifier{})
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	ui.selected = 1

	if err := ui.toggleTask(nil, nil); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ui.selectedTask() == nil || ui.selectedTask().ID != second.ID {
		t.Fatalf("expected selection to stay on task %d", second.ID)
	}
}

func TestSendText(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created := createTask(t, store, "remind me", 2024, time.May, 1)

	t.Run("sent", func(t *testing.T) {
		notifier := &fakeNotifier{}
		ui := newTestUI(store, notifier)
		if err := ui.loadTasks(); err != nil {
			t.Fatalf("load tasks: %v", err)
		}
		if err := ui.sendText(nil, nil); err != nil {
			t.Fatalf("send text: %v", err)
		}
		if len(notifier.sent) != 1 || notifier.sent[0] != created.ID {
			t.Fatalf("unexpected sends %v", notifier.sent)
		}
	})

	t.Run("failure goes to status", func(t *testing.T) {
		ui := newTestUI(store, &fakeNotifier{err: errors.New("smtp down")})
		if err := ui.loadTasks(); err != nil {
			t.Fatalf("load tasks: %v", err)
		}
		if err := ui.sendText(nil, nil); err != nil {
			t.Fatalf("send text: %v", err)
		}
		if ui.status != "smtp down" {
			t.Fatalf("unexpected status %q", ui.status)
		}
	})
}

func TestEmptyListActionsAreNoops(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	notifier := &fakeNotifier{}
	ui := newTestUI(store, notifier)
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if err := ui.toggleTask(nil, nil); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := ui.sendText(nil, nil); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if err := ui.moveDown(nil, nil); err != nil {
		t.Fatalf("move down: %v", err)
	}
	if ui.selected != 0 || len(notifier.sent) != 0 {
		t.Fatalf("expected no changes, selected=%d sent=%v", ui.selected, notifier.sent)
	}
}

func TestMoveStaysInBounds(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	createTask(t, store, "a", 2024, time.January, 1)
	createTask(t, store, "b", 2024, time.February, 1)

	ui := newTestUI(store, &fakeNotifier{})
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}

	_ = ui.moveUp(nil, nil)
	if ui.selected != 0 {
		t.Fatalf("expected 0, got %d", ui.selected)
	}
	_ = ui.moveDown(nil, nil)
	_ = ui.moveDown(nil, nil)
	if ui.selected != 1 {
		t.Fatalf("expected 1, got %d", ui.selected)
	}
}

func TestHelpBlocksActions(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	created := createTask(t, store, "guarded", 2024, time.January, 1)

	ui := newTestUI(store, &fakeNotifier{})
	if err := ui.loadTasks(); err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	_ = ui.toggleHelp(nil, nil)
	_ = ui.toggleTask(nil, nil)
	if completed(t, store, created.ID) {
		t.Fatalf("expected toggle to be ignored while help is open")
	}
	_ = ui.toggleHelp(nil, nil)
	if ui.helpActive {
		t.Fatalf("expected help to close")
	}
}

func TestFormatTaskSummary(t *testing.T) {
	due := time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task model.Task
		want string
	}{
		{"open", model.Task{ID: 3, Description: "ship", Due: &due}, "[ ] #3 ship | due 2024-07-04"},
		{"done", model.Task{ID: 4, Description: "ship", Due: &due, Completed: true}, "[x] #4 ship | due 2024-07-04"},
		{"empty", model.Task{ID: 5}, "[ ] #5 (no description) | due none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTaskSummary(tt.task); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func createTask(t *testing.T, store *db.Store, description string, year int, month time.Month, day int) model.Task {
	t.Helper()
	due := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	created, err := store.CreateTask(context.Background(), db.TaskInput{Description: description, Due: &due})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return created
}

func completed(t *testing.T, store *db.Store, id int64) bool {
	t.Helper()
	task, err := store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return task.Completed
}

func newTestUI(store *db.Store, notifier *fakeNotifier) *UI {
	return &UI{
		store:    store,
		notifier: notifier,
	}
}

func newTestStore(t *testing.T) (*db.Store, func()) {
	t.Helper()
	conn, err := db.Open(db.Options{Driver: db.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db.NewStore(conn), func() {
		_ = conn.Close()
	}
}
