/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/seckatie/smartbookmark/internal/client"
	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/core/view"
	"github.com/seckatie/smartbookmark/internal/logger"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	editingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6FC28E"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("238"))
)

const watchHelp = `commands:
  add <url> [title]   add a bookmark (title is looked up when omitted)
  rm <n>              delete row n
  edit <n>            start editing row n
  title <text>        set the draft title
  url <text>          set the draft url
  save                save the edit
  cancel              drop the edit
  /<text>             filter by title or url ("/" clears)
  reload              reload from the server
  help                show this help
  quit                exit`

// watchCmd is a terminal presentation of the local view. It redraws on every
// change, whether made here or on another device.
var watchCmd = &cobra.Command{
	Use:          "watch",
	Short:        "Show your bookmarks and follow changes live",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd)
	},
}

var errFeedDropped = errors.New("lost the change feed; restart watch to reload")

func init() {
	watchCmd.Flags().Duration("call-timeout", 15*time.Second, "Timeout for each request to the server")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	policy, err := view.ParsePolicy(cfg.SyncPolicy)
	if err != nil {
		return err
	}
	callTimeout, _ := cmd.Flags().GetDuration("call-timeout")

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	c, err := newClient(cmd, cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := &watchUI{out: cmd.OutOrStdout(), titles: c}
	f := &watchedFeed{client: c, dropped: make(chan error, 1)}
	v := view.New(c, f, view.Options{
		Policy:      policy,
		Notify:      ui.notice,
		OnChange:    ui.redraw,
		CallTimeout: callTimeout,
		Log:         log,
	})
	ui.view = v
	defer v.Close()

	if err := v.Start(ctx, c); err != nil {
		if errors.Is(err, view.ErrUnauthenticated) {
			return fmt.Errorf("session rejected by %s; mint a new one with the token command", cfg.ServerURL)
		}
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-f.dropped:
			return fmt.Errorf("%w: %v", errFeedDropped, err)
		case line, ok := <-lines:
			if !ok {
				v.Wait()
				return nil
			}
			quit, err := ui.exec(ctx, line)
			if err != nil {
				ui.flash(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

// watchedFeed reports a feed that ended on its own on dropped.
type watchedFeed struct {
	client  *client.Client
	dropped chan error
}

func (f *watchedFeed) Subscribe(ctx context.Context, ownerID string, onEvent func(feed.Event)) (view.Subscription, error) {
	sub, err := f.client.SubscribeFeed(ctx, onEvent)
	if err != nil {
		return nil, err
	}
	go func() {
		<-sub.Done()
		if err := sub.Err(); err != nil {
			select {
			case f.dropped <- err:
			default:
			}
		}
	}()
	return sub, nil
}

type titleSuggester interface {
	SuggestTitle(ctx context.Context, rawURL string) (string, error)
}

type watchUI struct {
	view   *view.View
	titles titleSuggester
	out    io.Writer

	mu      sync.Mutex
	status  string
	message string
}

func (u *watchUI) notice(n view.Notice) {
	u.mu.Lock()
	if n.Level == view.Success {
		u.status = okStyle.Render(n.Message)
	} else {
		u.status = failStyle.Render(fmt.Sprintf("%s: %v", n.Message, n.Err))
	}
	u.mu.Unlock()
	u.redraw()
}

func (u *watchUI) flash(msg string) {
	u.mu.Lock()
	u.message = msg
	u.mu.Unlock()
	u.redraw()
}

// redraw is called from feed and completion goroutines.
func (u *watchUI) redraw() {
	if u.view == nil {
		return
	}
	rows := u.view.Projection()
	edit, editing := u.view.Editing()
	var ep *view.EditState
	if editing {
		ep = &edit
	}
	footer := statusLine(u.view.Loading(), u.view.LoadErr(), len(rows), u.view.Len(), u.view.Query())

	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprint(u.out, "\033[H\033[2J")
	fmt.Fprintln(u.out, renderTable(rows, ep))
	fmt.Fprintln(u.out, footer)
	if u.status != "" {
		fmt.Fprintln(u.out, u.status)
	}
	if u.message != "" {
		fmt.Fprintln(u.out, mutedStyle.Render(u.message))
		u.message = ""
	}
	fmt.Fprint(u.out, "> ")
}

func statusLine(loading bool, loadErr error, shown, total int, query string) string {
	var s string
	switch {
	case loading:
		s = " loading… "
	case loadErr != nil:
		s = fmt.Sprintf(" failed to load bookmarks: %v ", loadErr)
	case query != "":
		s = fmt.Sprintf(" %d of %d bookmarks matching %q ", shown, total, query)
	default:
		s = fmt.Sprintf(" %d bookmarks ", total)
	}
	return statusStyle.Render(s)
}

// renderTable draws rows numbered from 1. The row being edited shows its
// drafts instead of the stored values.
func renderTable(rows []db.Bookmark, edit *view.EditState) string {
	if len(rows) == 0 {
		return mutedStyle.Render("no bookmarks")
	}

	editRow := -1
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("#", "Title", "URL", "Added")
	for i, b := range rows {
		title, url := b.Title, b.URL
		if edit != nil && edit.ID == b.ID {
			editRow = i + 1
			title, url = edit.Title, edit.URL
			if edit.Saving {
				title += " (saving)"
			}
		}
		t.Row(strconv.Itoa(i+1), title, url, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row+1 == editRow:
			return editingStyle
		default:
			return lipgloss.NewStyle()
		}
	})
	return t.Render()
}

// rowID maps a 1-based row number in the current projection to an id.
func (u *watchUI) rowID(arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("expected a row number, got %q", arg)
	}
	rows := u.view.Projection()
	if n < 1 || n > len(rows) {
		return "", fmt.Errorf("no row %d", n)
	}
	return rows[n-1].ID, nil
}

// exec runs one command line. It reports whether the user asked to quit.
func (u *watchUI) exec(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		u.redraw()
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		u.view.SetQuery(strings.TrimSpace(line[1:]))
		return false, nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "quit", "q", "exit":
		return true, nil
	case "help", "?":
		u.flash(watchHelp)
		return false, nil
	case "reload":
		return false, u.view.Load(ctx, u.view.OwnerID())
	case "add":
		url, title, _ := strings.Cut(rest, " ")
		title = strings.TrimSpace(title)
		if url != "" && title == "" && u.titles != nil {
			suggested, err := u.titles.SuggestTitle(ctx, url)
			if err != nil {
				return false, fmt.Errorf("could not look up a title, pass one: %w", err)
			}
			title = suggested
		}
		u.view.SetInputs(title, url)
		return false, u.view.Add(title, url)
	case "rm":
		id, err := u.rowID(rest)
		if err != nil {
			return false, err
		}
		return false, u.view.Remove(id)
	case "edit":
		id, err := u.rowID(rest)
		if err != nil {
			return false, err
		}
		return false, u.view.BeginEdit(id)
	case "title", "url":
		edit, ok := u.view.Editing()
		if !ok {
			return false, view.ErrNotEditing
		}
		if verb == "title" {
			edit.Title = rest
		} else {
			edit.URL = rest
		}
		return false, u.view.SetDrafts(edit.Title, edit.URL)
	case "save":
		edit, ok := u.view.Editing()
		if !ok {
			return false, view.ErrNotEditing
		}
		return false, u.view.CommitEdit(edit.ID)
	case "cancel":
		u.view.CancelEdit()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", verb)
	}
}
