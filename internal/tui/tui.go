package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/Joseda-hg/taskboard/internal/notify"
	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
)

const (
	viewHeader = "header"
	viewTasks  = "tasks"
	viewDetail = "detail"
	viewFooter = "footer"
	viewHelp   = "help"
)

// TaskStore is the part of db.Store the terminal client needs.
type TaskStore interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	EnableTask(ctx context.Context, taskID int64) (model.Task, error)
	DisableTask(ctx context.Context, taskID int64) (model.Task, error)
}

type UI struct {
	store    TaskStore
	notifier notify.Notifier
	gui      *gocui.Gui

	tasks      []model.Task
	selected   int
	helpActive bool
	status     string
}

func Run(store TaskStore, notifier notify.Notifier) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := &UI{
		store:    store,
		notifier: notifier,
		gui:      gui,
	}

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.loadTasks(); err != nil {
		return err
	}

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	bindings := []struct {
		view    string
		key     any
		handler func(*gocui.Gui, *gocui.View) error
	}{
		{"", gocui.KeyCtrlC, u.quit},
		{"", 'q', u.quit},
		{"", 'r', u.reload},
		{"", 'x', u.toggleTask},
		{"", 't', u.sendText},
		{"", '?', u.toggleHelp},
		{"", 'j', u.moveDown},
		{"", gocui.KeyArrowDown, u.moveDown},
		{"", 'k', u.moveUp},
		{"", gocui.KeyArrowUp, u.moveUp},
		{viewHelp, gocui.KeyEsc, u.toggleHelp},
	}
	for _, b := range bindings {
		if err := gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.FgColor = gocui.ColorDefault
	u.renderHeader(headerView)

	footerY1 := max(maxY-1, 2)
	footerY0 := max(footerY1-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom <= bodyTop {
		return nil
	}

	splitX := max(maxX*3/5, 20)
	if splitX >= maxX-1 {
		splitX = maxX - 2
	}

	tasksView, err := gui.SetView(viewTasks, 0, bodyTop, splitX, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		tasksView.Title = "Tasks (latest due first)"
		_, _ = gui.SetCurrentView(viewTasks)
	}
	tasksView.Highlight = true
	tasksView.SelBgColor = gocui.ColorBlue
	tasksView.SelFgColor = gocui.ColorBlack
	u.renderTasks(tasksView)

	detailView, err := gui.SetView(viewDetail, splitX+1, bodyTop, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "Detail"
	}
	detailView.Wrap = true
	u.renderDetail(detailView)

	if u.helpActive {
		helpView, err := gui.SetView(viewHelp, maxX/6, maxY/6, maxX*5/6, maxY*5/6, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		helpView.Title = "Help"
		helpView.Clear()
		fmt.Fprint(helpView, helpText())
		_, _ = gui.SetViewOnTop(viewHelp)
		_, _ = gui.SetCurrentView(viewHelp)
	} else if _, err := gui.View(viewHelp); err == nil {
		_ = gui.DeleteView(viewHelp)
		_, _ = gui.SetCurrentView(viewTasks)
	}

	return nil
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	done := 0
	for _, task := range u.tasks {
		if task.Completed {
			done++
		}
	}
	fmt.Fprintf(view, "taskboard | %d tasks | %d done | %d open", len(u.tasks), done, len(u.tasks)-done)
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	fmt.Fprintln(view, "j/k move | x enable/disable | t send text | r reload | ? help | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) renderTasks(view *gocui.View) {
	view.Clear()
	for i, task := range u.tasks {
		prefix := " "
		if i == u.selected {
			prefix = ">"
		}
		fmt.Fprintf(view, "%s %s\n", prefix, formatTaskSummary(task))
	}
	if len(u.tasks) > 0 {
		view.SetCursor(0, u.selected)
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()
	task := u.selectedTask()
	if task == nil {
		fmt.Fprintln(view, "No tasks.")
		return
	}
	fmt.Fprint(view, formatTaskDetail(*task))
}

func (u *UI) loadTasks() error {
	tasks, err := u.store.ListTasks(context.Background())
	if err != nil {
		return err
	}
	u.tasks = tasks
	if u.selected >= len(u.tasks) {
		u.selected = max(len(u.tasks)-1, 0)
	}
	return nil
}

func (u *UI) selectedTask() *model.Task {
	if u.selected < 0 || u.selected >= len(u.tasks) {
		return nil
	}
	return &u.tasks[u.selected]
}

func (u *UI) moveDown(_ *gocui.Gui, _ *gocui.View) error {
	if u.helpActive {
		return nil
	}
	if u.selected < len(u.tasks)-1 {
		u.selected++
	}
	return nil
}

func (u *UI) moveUp(_ *gocui.Gui, _ *gocui.View) error {
	if u.helpActive {
		return nil
	}
	if u.selected > 0 {
		u.selected--
	}
	return nil
}

func (u *UI) reload(_ *gocui.Gui, _ *gocui.View) error {
	if err := u.loadTasks(); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = "reloaded"
	return nil
}

// toggleTask enables an open task and disables a completed one.
func (u *UI) toggleTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.helpActive {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}

	apply := u.store.EnableTask
	if selected.Completed {
		apply = u.store.DisableTask
	}
	updated, err := apply(context.Background(), selected.ID)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = fmt.Sprintf("task #%d %s", updated.ID, updated.State())
	return u.reloadKeepingSelection(updated.ID)
}

func (u *UI) sendText(_ *gocui.Gui, _ *gocui.View) error {
	if u.helpActive {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	if err := u.notifier.Notify(context.Background(), *selected); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = fmt.Sprintf("text sent for task #%d", selected.ID)
	return nil
}

func (u *UI) toggleHelp(_ *gocui.Gui, _ *gocui.View) error {
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func (u *UI) reloadKeepingSelection(taskID int64) error {
	if err := u.loadTasks(); err != nil {
		u.status = err.Error()
		return nil
	}
	for i, task := range u.tasks {
		if task.ID == taskID {
			u.selected = i
			break
		}
	}
	return nil
}

func formatTaskSummary(task model.Task) string {
	marker := "[ ]"
	if task.Completed {
		marker = "[x]"
	}
	description := task.Description
	if description == "" {
		description = "(no description)"
	}
	return fmt.Sprintf("%s #%d %s | due %s", marker, task.ID, description, task.DueLabel())
}

func formatTaskDetail(task model.Task) string {
	description := task.Description
	if description == "" {
		description = "none"
	}
	return strings.Join([]string{
		fmt.Sprintf("Task #%d", task.ID),
		"",
		"Description: " + description,
		"Due:         " + task.DueLabel(),
		"State:       " + task.State(),
		"Created:     " + task.CreatedAt.Format("2006-01-02 15:04"),
		"Updated:     " + task.UpdatedAt.Format("2006-01-02 15:04"),
	}, "\n")
}

func helpText() string {
	return strings.Join([]string{
		"Navigation:",
		"  j/k or arrows move selection",
		"",
		"Actions:",
		"  x enable (mark done) or disable the selected task",
		"  t send a text message about the selected task",
		"  r reload tasks",
		"",
		"Other:",
		"  ? or esc close help | q quit",
	}, "\n")
}
