package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorBold     = "\033[1m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var radarFrames = []string{"◜", "◝", "◞", "◟"}

// termMu serializes all terminal output so the cursor save/restore in
// PrintLiveStatus is never interleaved with a log write.
var termMu sync.Mutex

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TermWidth returns the width of stdout, or 80 when it is not a terminal.
func TermWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

type termWriter struct{}

func (termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns a stderr writer guarded by the terminal mutex.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	if !IsTerminal(os.Stdout) {
		return
	}
	fmt.Print("\033[2J\033[H")

	banner := `
 _      __    __        _ __     __
| | /| / /__ / /  ___  (_) /__  / /_
| |/ |/ / -_) _ \/ _ \/ / / _ \/ __/
|__/|__/\__/_.__/ .__/_/_/\___/\__/
               /_/
     >> NATURAL LANGUAGE BROWSER AUTOMATION <<
`
	width := TermWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// InitializeTerminal reserves the top of the screen for the banner and the
// status line; logs scroll below line 12.
func InitializeTerminal() {
	if !IsTerminal(os.Stdout) {
		return
	}
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	if !IsTerminal(os.Stdout) {
		return
	}
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders s as the one-line dashboard. frame selects the radar glyph.
func StatusLine(s Snapshot, frame int) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	pulse, pulseColor := "HEALTHY", colorNeonCyan
	switch delta := time.Since(s.LastHeartbeat); {
	case delta >= 90*time.Second:
		pulse, pulseColor = "OFFLINE", colorNeonMag
	case delta >= 40*time.Second:
		pulse, pulseColor = "LAGGING", colorPurple
	}

	radar := " "
	if s.Active > 0 {
		radar = radarFrames[frame%len(radarFrames)]
	}

	last := s.LastQuery
	if last == "" {
		last = "Waiting..."
	}
	if len(last) > 25 {
		last = last[:22] + "..."
	}

	return fmt.Sprintf("[%s] %s%-8s%s | %sactive %d%s done %d failed %d [%s] %s%s%s [%s] [%.1fMB]",
		s.LastHeartbeat.Format("15:04:05"),
		pulseColor, pulse, colorReset,
		colorBold, s.Active, colorReset,
		s.Completed, s.Failed,
		last,
		colorPurple, radar, colorReset,
		s.Uptime, memMB,
	)
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus(s *Status, frame int) {
	if !IsTerminal(os.Stdout) {
		return
	}
	line := "\033[s\033[10;1H\033[K" + StatusLine(s.Snapshot(), frame) + "\033[u"
	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}
