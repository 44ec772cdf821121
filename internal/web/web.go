package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/Joseda-hg/taskboard/internal/config"
	"github.com/Joseda-hg/taskboard/internal/db"
	"github.com/Joseda-hg/taskboard/internal/logging"
	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/Joseda-hg/taskboard/internal/notify"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	indexTemplate = template.Must(template.ParseFS(templateFS, "templates/layout.tmpl", "templates/index.tmpl"))
	taskTemplate  = template.Must(template.ParseFS(templateFS, "templates/layout.tmpl", "templates/task.tmpl"))
	errorTemplate = template.Must(template.ParseFS(templateFS, "templates/layout.tmpl", "templates/error.tmpl"))
)

// TaskStore is the part of db.Store the web server needs.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, taskID int64) (model.Task, error)
	EnableTask(ctx context.Context, taskID int64) (model.Task, error)
	DisableTask(ctx context.Context, taskID int64) (model.Task, error)
}

type Options struct {
	Version    string
	AuthSecret string
	RateLimit  config.RateLimitConfig
}

type Server struct {
	store    TaskStore
	notifier notify.Notifier
	log      *logrus.Entry
	opts     Options
	metrics  *metrics
}

type transition struct {
	name  string
	apply func(ctx context.Context, taskID int64) (model.Task, error)
}

func NewServer(store TaskStore, notifier notify.Notifier, log *logrus.Entry, opts Options) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		store:    store,
		notifier: notifier,
		log:      log,
		opts:     opts,
		metrics:  newMetrics(),
	}
}

func (s *Server) Handler() http.Handler {
	enable := transition{name: "enable", apply: s.store.EnableTask}
	disable := transition{name: "disable", apply: s.store.DisableTask}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("GET /tasks", s.indexHandler)
	mux.HandleFunc("GET /tasks/{id}", s.taskHandler)
	mux.HandleFunc("PATCH /tasks/{id}/enable", s.requireToken(s.transitionHandler(enable)))
	mux.HandleFunc("PATCH /tasks/{id}/disable", s.requireToken(s.transitionHandler(disable)))
	mux.HandleFunc("GET /text/{id}", s.requireToken(s.textHandler))

	mux.HandleFunc("GET /api/tasks", s.apiTasksHandler)
	mux.HandleFunc("GET /api/tasks/{id}", s.apiTaskHandler)
	mux.HandleFunc("PATCH /api/tasks/{id}/enable", s.requireToken(s.apiTransitionHandler(enable)))
	mux.HandleFunc("PATCH /api/tasks/{id}/disable", s.requireToken(s.apiTransitionHandler(disable)))
	mux.HandleFunc("POST /api/tasks/{id}/text", s.requireToken(s.apiTextHandler))

	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.handler())

	var handler http.Handler = methodOverride(mux)
	handler = s.metrics.middleware(handler)
	if s.opts.RateLimit.Enabled {
		handler = s.rateLimit(handler)
	}
	handler = securityHeaders(handler)
	handler = s.logRequests(handler)
	handler = requestID(handler)
	return handler
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	logEntry := s.handlerLog(r, "index")

	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		logEntry.WithError(err).Error("failed to list tasks")
		renderError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data := struct {
		Total    int
		Tasks    []model.Task
		ReadOnly bool
	}{Total: len(tasks), Tasks: tasks, ReadOnly: s.readOnly()}

	render(w, http.StatusOK, indexTemplate, data)
}

func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request) {
	logEntry := s.handlerLog(r, "show")

	task, err := s.lookup(r)
	if err != nil {
		s.renderLookupError(w, logEntry, err)
		return
	}

	data := struct {
		Task     model.Task
		ReadOnly bool
	}{Task: task, ReadOnly: s.readOnly()}

	render(w, http.StatusOK, taskTemplate, data)
}

func (s *Server) transitionHandler(t transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logEntry := s.handlerLog(r, t.name)

		task, err := s.apply(r, t)
		if err != nil {
			s.renderLookupError(w, logEntry, err)
			return
		}

		logEntry.WithFields(logrus.Fields{"task_id": task.ID, "completed": task.Completed}).Info("task " + t.name + "d")
		http.Redirect(w, r, "/tasks", http.StatusSeeOther)
	}
}

func (s *Server) textHandler(w http.ResponseWriter, r *http.Request) {
	logEntry := s.handlerLog(r, "send_sms")

	task, err := s.lookup(r)
	if err != nil {
		s.renderLookupError(w, logEntry, err)
		return
	}

	// GET routes also answer HEAD; only a real GET sends.
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.sendText(r.Context(), task); err != nil {
		logEntry.WithError(err).WithField("task_id", task.ID).Error("failed to send text")
		renderError(w, http.StatusBadGateway, "the text message could not be sent")
		return
	}

	http.Redirect(w, r, "/tasks/"+strconv.FormatInt(task.ID, 10), http.StatusSeeOther)
}

func (s *Server) apiTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.handlerLog(r, "api_index").WithError(err).Error("failed to list tasks")
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) apiTaskHandler(w http.ResponseWriter, r *http.Request) {
	task, err := s.lookup(r)
	if err != nil {
		s.writeLookupError(w, s.handlerLog(r, "api_show"), err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) apiTransitionHandler(t transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logEntry := s.handlerLog(r, "api_"+t.name)

		task, err := s.apply(r, t)
		if err != nil {
			s.writeLookupError(w, logEntry, err)
			return
		}

		logEntry.WithFields(logrus.Fields{"task_id": task.ID, "completed": task.Completed}).Info("task " + t.name + "d")
		writeJSON(w, http.StatusOK, task)
	}
}

func (s *Server) apiTextHandler(w http.ResponseWriter, r *http.Request) {
	logEntry := s.handlerLog(r, "api_send_sms")

	task, err := s.lookup(r)
	if err != nil {
		s.writeLookupError(w, logEntry, err)
		return
	}

	if err := s.sendText(r.Context(), task); err != nil {
		logEntry.WithError(err).WithField("task_id", task.ID).Error("failed to send text")
		writeJSONError(w, http.StatusBadGateway, "text could not be sent")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "task_id": task.ID})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "available",
		"version": s.opts.Version,
	})
}

// readOnly hides the HTML forms and text links, which cannot carry a bearer
// token, when auth is configured.
func (s *Server) readOnly() bool {
	return s.opts.AuthSecret != ""
}

func (s *Server) lookup(r *http.Request) (model.Task, error) {
	id, err := parseID(r)
	if err != nil {
		return model.Task{}, err
	}
	return s.store.GetTask(r.Context(), id)
}

func (s *Server) apply(r *http.Request, t transition) (model.Task, error) {
	id, err := parseID(r)
	if err != nil {
		return model.Task{}, err
	}
	task, err := t.apply(r.Context(), id)
	if err != nil {
		return model.Task{}, err
	}
	s.metrics.transitions.WithLabelValues(t.name).Inc()
	return task, nil
}

func (s *Server) sendText(ctx context.Context, task model.Task) error {
	if err := s.notifier.Notify(ctx, task); err != nil {
		return err
	}
	s.metrics.transitions.WithLabelValues("text").Inc()
	return nil
}

func (s *Server) handlerLog(r *http.Request, handler string) *logrus.Entry {
	entry := logging.WithRequestID(s.log, getRequestID(r.Context()))
	return entry.WithFields(logrus.Fields{
		"component": "http_handler",
		"handler":   handler,
	})
}

func (s *Server) renderLookupError(w http.ResponseWriter, logEntry *logrus.Entry, err error) {
	if errors.Is(err, db.ErrNotFound) {
		logEntry.WithError(err).Warn("task not found")
		renderError(w, http.StatusNotFound, "The task you were looking for doesn't exist.")
		return
	}
	logEntry.WithError(err).Error("task lookup failed")
	renderError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeLookupError(w http.ResponseWriter, logEntry *logrus.Entry, err error) {
	if errors.Is(err, db.ErrNotFound) {
		logEntry.WithError(err).Warn("task not found")
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}
	logEntry.WithError(err).Error("task lookup failed")
	writeJSONError(w, http.StatusInternalServerError, "internal server error")
}

// parseID treats anything that is not a positive integer as an unknown task.
func parseID(r *http.Request) (int64, error) {
	value := r.PathValue("id")
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("task %q: %w", value, db.ErrNotFound)
	}
	return id, nil
}

func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func renderError(w http.ResponseWriter, status int, message string) {
	data := struct {
		Status  int
		Title   string
		Message string
	}{Status: status, Title: http.StatusText(status), Message: message}
	render(w, status, errorTemplate, data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
