package feedback

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Bell rings the terminal bell; the tone's Repeat is the only property a
// terminal can express.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

func (b *Bell) Play(t Tone) error {
	n := t.Repeat
	if n <= 0 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, strings.Repeat("\a", n))
	return err
}

// TerminalBellFactory opens a Bell on f only when f is an interactive
// terminal.
func TerminalBellFactory(f *os.File) PlayerFactory {
	return func() (Player, error) {
		if f == nil {
			return nil, ErrAudioUnavailable
		}
		fd := f.Fd()
		if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			return nil, ErrAudioUnavailable
		}
		return &Bell{w: f}, nil
	}
}

// LineToaster prints one line per toast and mirrors it to the log.
type LineToaster struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

func NewLineToaster(w io.Writer, logger *slog.Logger) *LineToaster {
	return &LineToaster{w: w, logger: logger}
}

var levelPrefix = map[Level]string{
	LevelSuccess: "[ok]",
	LevelInfo:    "[..]",
	LevelWarning: "[!!]",
	LevelError:   "[xx]",
}

func (t *LineToaster) Toast(toast Toast) {
	if t.w != nil {
		t.mu.Lock()
		_, _ = fmt.Fprintf(t.w, "%s %s\n", levelPrefix[toast.Level], toast.Message)
		t.mu.Unlock()
	}
	if t.logger != nil {
		t.logger.Info("toast", "kind", string(toast.Kind), "level", string(toast.Level), "message", toast.Message)
	}
}
