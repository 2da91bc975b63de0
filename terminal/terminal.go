// Package terminal is the host tty edition of the Console interface.
// Interpreter strings are 8-bit Latin-1 bytes; they are translated to
// UTF-8 on the way out so the top-bit characters survive a modern tty.
package terminal

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
	"golang.org/x/text/encoding/charmap"
)

// Terminal drives stdout/stdin. Cursor position is tracked locally,
// counted from (0,0) at the top left.
type Terminal struct {
	out  *bufio.Writer
	line *liner.State

	rows, cols int
	row, col   int

	intr chan os.Signal
}

// New wires up the tty. The size query fails harmlessly when stdout is
// a pipe; the cursor is still tracked.
func New() *Terminal {
	t := &Terminal{
		out:  bufio.NewWriter(os.Stdout),
		line: liner.NewLiner(),
		intr: make(chan os.Signal, 1),
	}
	t.line.SetCtrlCAborts(true)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			t.cols, t.rows = cols, rows
		}
	}
	signal.Notify(t.intr, os.Interrupt)
	return t
}

// Close puts the tty back in cooked mode. Liner must close before the
// process exits or the shell inherits raw mode.
func (t *Terminal) Close() {
	t.line.Close()
	t.out.Flush()
	signal.Stop(t.intr)
}

// encode maps the interpreter's 8-bit characters onto UTF-8.
func encode(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] >= 0x80 {
			var b strings.Builder
			for j := 0; j < len(msg); j++ {
				b.WriteRune(charmap.ISO8859_1.DecodeByte(msg[j]))
			}
			return b.String()
		}
	}
	return msg
}

// Print sends the string to the terminal at the current cursor position
func (t *Terminal) Print(msg string) {
	t.out.WriteString(encode(msg))
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		t.row++
		t.col = len(msg) - i - 1
	} else {
		t.col += len(msg)
	}
}

// Println prints the string followed by a newline
func (t *Terminal) Println(msg string) {
	t.Print(msg)
	t.out.WriteByte('\n')
	t.row++
	t.col = 0
}

// Flush pushes buffered output out to the tty.
func (t *Terminal) Flush() {
	t.out.Flush()
}

// Locate moves the cursor to the passed row/col
// NOTE: When issuing the cursor position sequence, the upper left
// screen position is 1,1
func (t *Terminal) Locate(row, col int) {
	fmt.Fprintf(t.out, "\x1b[%d;%dH", row+1, col+1)
	t.row, t.col = row, col
}

// GetCursor retrieves the current cursor position
func (t *Terminal) GetCursor() (int, int) { // row,col
	return t.row, t.col
}

// Cls clears the terminal of all text
func (t *Terminal) Cls() {
	t.out.WriteString("\x1b[2J\x1b[H")
	t.row, t.col = 0, 0
}

// SoundBell plays the current bell sound
func (t *Terminal) SoundBell() {
	t.out.WriteByte('\a')
	t.out.Flush()
}

// ReadKey reads one keystroke without echo.
func (t *Terminal) ReadKey() (byte, bool) {
	t.out.Flush()
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		st, err := term.MakeRaw(fd)
		if err != nil {
			return 0, false
		}
		defer term.Restore(fd, st)
	}
	var b [1]byte
	n, err := os.Stdin.Read(b[:])
	if err != nil || n != 1 {
		return 0, false
	}
	return b[0], true
}

// ReadLine collects one line with editing and history. A ^C or ^D
// answers ok=false so the caller can raise an escape.
func (t *Terminal) ReadLine(prefill string, max int) (string, bool) {
	t.out.Flush()
	s, err := t.line.PromptWithSuggestion("", prefill, len(prefill))
	if err != nil {
		return "", false
	}
	if max > 0 && len(s) > max {
		s = s[:max]
	}
	if s != "" {
		t.line.AppendHistory(s)
	}
	t.row++
	t.col = 0
	return s, true
}

// BreakCheck reports a pending interrupt. The signal is consumed, so
// one ^C stops one run.
func (t *Terminal) BreakCheck() bool {
	select {
	case <-t.intr:
		return true
	default:
		return false
	}
}

// Size reports the tty dimensions, (0,0) when stdout is not a tty.
func (t *Terminal) Size() (rows, cols int) {
	return t.rows, t.cols
}
