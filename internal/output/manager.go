package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// JobLine is one status message shown on the live board.
type JobLine struct {
	ID          int
	Label       string
	Status      string
	Message     string
	Detail      []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager redraws every tracked status message in place, the way a chat
// client would show edits.
type Manager struct {
	mu          sync.RWMutex
	out         io.Writer
	lines       map[int]*JobLine
	numLines    int
	maxDetail   int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager() *Manager {
	return NewManagerTo(os.Stdout)
}

func NewManagerTo(w io.Writer) *Manager {
	return &Manager{
		out:         w,
		lines:       make(map[int]*JobLine),
		maxDetail:   6,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(id int, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.lines[id] = &JobLine{
		ID:          id,
		Label:       label,
		Status:      "pending",
		Message:     label,
		StartTime:   now,
		LastUpdated: now,
	}
}

// SetMessage replaces the text of a line. A ✅ headline completes it and a
// ❌ or 🛑 headline records it as failed.
func (m *Manager) SetMessage(id int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.lines[id]
	if !ok || info.Complete {
		return
	}
	info.Message, info.Detail = splitStatus(text)
	if len(info.Detail) > m.maxDetail {
		info.Detail = info.Detail[len(info.Detail)-m.maxDetail:]
	}
	info.LastUpdated = time.Now()
	switch statusKind(text) {
	case "success":
		info.Status = "success"
		info.Complete = true
		info.Detail = nil
	case "error":
		info.Status = "error"
		info.Complete = true
		info.Error = errors.New(info.Message)
		m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: info.Error, Time: info.LastUpdated})
	}
}

func (m *Manager) Line(id int) (JobLine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.lines[id]
	if !ok {
		return JobLine{}, false
	}
	return *info, true
}

func (m *Manager) Counts() (success, failed, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, info := range m.lines {
		switch info.Status {
		case "success":
			success++
		case "error":
			failed++
		}
	}
	return success, failed, len(m.lines)
}

func (m *Manager) indicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func (m *Manager) sorted() []*JobLine {
	all := make([]*JobLine, 0, len(m.lines))
	for _, info := range m.lines {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		// running lines first, then completed ones in registration order
		if all[i].Complete != all[j].Complete {
			return !all[i].Complete
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func (m *Manager) updateDisplay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	available := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	count := 0
	for _, info := range m.sorted() {
		if count >= available {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		var msg string
		switch info.Status {
		case "success":
			msg = successStyle.Render(truncate(info.Message, 12))
		case "error":
			msg = errorStyle.Render(truncate(info.Message, 12))
		default:
			msg = pendingStyle.Render(truncate(info.Message, 12))
		}
		fmt.Fprintf(m.out, "  %s %s %s\n", m.indicator(info.Status), debugStyle.Render(elapsed.String()), msg)
		count++
		for _, line := range info.Detail {
			if count >= available {
				break
			}
			fmt.Fprintf(m.out, "      %s\n", streamStyle.Render(truncate(line, 6)))
			count++
		}
	}
	m.numLines = count
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) ShowSummary() {
	success, failed, total := m.Counts()
	m.mu.RLock()
	defer m.mu.RUnlock()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, total)))
	if failed > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, total)))
	}
	if len(m.errors) > 0 {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
		for i, e := range m.errors {
			fmt.Fprintf(m.out, "    %s %s %s\n",
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", e.Time.Format("15:04:05"))),
				errorStyle.Render(strings.TrimSpace(e.Label)))
			fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(e.Error.Error()))
		}
	}
	fmt.Fprintln(m.out)
}
