// Package mos is the host edition of the operating system surface.
// TIME is centiseconds since the interpreter started, adjustable the
// way the hardware clock was.
package mos

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tklauser/go-sysconf"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/object"
)

const timeDolLayout = "Mon,02 Jan 2006.15:04:05"

// Host implements object.MOS on the running process. Star command
// listings go to the console it was built with.
type Host struct {
	term   object.Console
	start  time.Time
	offset int64         // centiseconds added by TIME=
	skew   time.Duration // added by TIME$=
}

func New(term object.Console) *Host {
	return &Host{term: term, start: time.Now()}
}

func (h *Host) Time() int64 {
	return int64(time.Since(h.start)/time.Millisecond)/10 + h.offset
}

func (h *Host) SetTime(t int64) {
	h.offset = t - int64(time.Since(h.start)/time.Millisecond)/10
}

func (h *Host) TimeDol() string {
	return time.Now().Add(h.skew).Format(timeDolLayout)
}

// SetTimeDol pretends to set the clock by remembering the difference.
func (h *Host) SetTimeDol(s string) error {
	want, err := time.ParseInLocation(timeDolLayout, s, time.Local)
	if err != nil {
		return berrors.NewMsg(berrors.CmdFail, "Bad time")
	}
	h.skew = want.Sub(time.Now().Truncate(time.Second))
	return nil
}

func (h *Host) Wait(centiseconds int) {
	time.Sleep(time.Duration(centiseconds) * 10 * time.Millisecond)
}

// Sys has no RISC OS kernel behind it on this host.
func (h *Host) Sys(num int64, in [10]int64, out *[10]int64) (int64, error) {
	return 0, berrors.New(berrors.Unsupported)
}

// Oscli dispatches the star commands this host can honour. Unknown
// commands fail rather than reach a shell.
func (h *Host) Oscli(cmd string) error {
	word := cmd
	rest := ""
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		word, rest = cmd[:i], strings.TrimSpace(cmd[i+1:])
	}

	switch strings.ToUpper(word) {
	case ".", "CAT":
		return h.cat(rest)
	case "CD", "DIR":
		if rest == "" {
			wd, err := os.Getwd()
			if err != nil {
				return berrors.NewMsg(berrors.CmdFail, err.Error())
			}
			h.term.Println(wd)
			return nil
		}
		if err := os.Chdir(rest); err != nil {
			return berrors.NewMsg(berrors.CmdFail, err.Error())
		}
		return nil
	case "INFO":
		return h.info()
	case "":
		return nil
	}
	return berrors.NewMsg(berrors.CmdFail, "Bad command")
}

func (h *Host) cat(dir string) error {
	if dir == "" {
		dir = "."
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() {
			n += "/"
		}
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		h.term.Println(n)
	}
	return nil
}

// info reports process CPU time, read the way ps does it.
func (h *Host) info() error {
	user, sys, err := cpuCentiseconds()
	if err != nil {
		return berrors.New(berrors.Unsupported)
	}
	h.term.Println(fmt.Sprintf("CPU user %d.%02ds system %d.%02ds",
		user/100, user%100, sys/100, sys%100))
	return nil
}

// cpuCentiseconds reads the clock-tick counts from the process stat
// line and scales them by the kernel tick rate.
func cpuCentiseconds() (user, sys int64, err error) {
	clktck, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clktck == 0 {
		return 0, 0, err
	}
	contents, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(contents))
	if len(fields) < 15 {
		return 0, 0, fmt.Errorf("short stat line")
	}
	utime, err := strconv.ParseInt(fields[13], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err := strconv.ParseInt(fields[14], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return utime * 100 / clktck, stime * 100 / clktck, nil
}
