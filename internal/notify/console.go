package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rahul/webpilot/internal/observability"
)

// Console prints events as one line each, coloured when the output is a
// terminal and cut to its width.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	width int
}

func NewConsole(out io.Writer, color bool) *Console {
	width := 0
	if color {
		width = observability.TermWidth()
	}
	return &Console{out: out, color: color, width: width}
}

func (c *Console) Publish(_ context.Context, ev Event) {
	marker, color := "•", "\033[96m"
	switch {
	case ev.IsError():
		marker, color = "✗", "\033[91m"
	case ev.Done:
		marker, color = "✓", "\033[92m"
	}

	line := fmt.Sprintf("%s [%s] %s", marker, shortID(ev.QueryID), ev.Message)
	if ev.Step > 0 {
		line += fmt.Sprintf(" (step %d)", ev.Step)
	}
	if ev.Image != "" {
		line += " [screenshot]"
	}
	line = strings.ReplaceAll(line, "\n", " ")
	if c.width > 4 && len([]rune(line)) > c.width {
		line = string([]rune(line)[:c.width-3]) + "..."
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		fmt.Fprintf(c.out, "%s%s\033[0m\n", color, line)
		return
	}
	fmt.Fprintln(c.out, line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
