package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// statusRow is the terminal line holding the live status; logs scroll below.
const statusRow = 10

// termMu serializes all terminal output so a log line never lands in the
// middle of the status line's cursor save/restore.
var termMu sync.Mutex

type termWriter struct{}

func (termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns the writer to hand to log.SetOutput.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
    ____  ________  ________  ________
   / __ )/  _/ __ \/  _/ __ )/  _/ __ \
  / __  |/ // / / // // __  |/ // /_/ /
 / /_/ // // /_/ // // /_/ // // ____/
/_____/___/_____/___/_____/___/_/

        >> STEP BY STEP, CLICK BY CLICK <<
`
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	for _, l := range strings.Split(banner, "\n") {
		padding := max((width-len(l))/2, 0)
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
	}
}

// IsInteractive reports whether stdout is a terminal able to host the
// live status line.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// InitializeTerminal keeps the banner and status line fixed and scrolls
// logs from line 12.
func InitializeTerminal() {
	fmt.Print("\033[12;r\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// statusLine renders the heartbeat health, current activity and open
// sessions as seen at now.
func statusLine(now time.Time) string {
	activity, detail, sessions, lastHB := GetStatus()

	health, color := "OFFLINE", colorNeonMag
	switch delta := now.Sub(lastHB); {
	case delta < 40*time.Second:
		health, color = "HEALTHY", colorNeonCyan
	case delta < 90*time.Second:
		health, color = "LAGGING", colorPurple
	}

	if detail == "" {
		detail = "waiting for events"
	}
	if len(detail) > 25 {
		detail = detail[:22] + "..."
	}

	return fmt.Sprintf("[%s] %s%-7s%s | %-7s %-25s | sessions %d | up %v",
		lastHB.Format("15:04:05"),
		color, health, colorReset,
		activity, detail,
		sessions,
		now.Sub(startTime).Round(time.Second),
	)
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus() {
	line := fmt.Sprintf("\033[s\033[%d;1H\033[K%s\033[u", statusRow, statusLine(time.Now()))
	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}
