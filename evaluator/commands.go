package evaluator

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/lexer"
	"github.com/stardot/MatrixBrandy-sub002/prog"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// stmtList prints the program. LIST n shows one line; LIST n,m,
// LIST n, and LIST ,m restrict the range.
func (ex *Exec) stmtList() error {
	m := ex.ws.Mem
	lo, hi := 0, prog.MaxLineNo
	single := false
	if m[ex.pos] == token.XLineNum || m[ex.pos] == token.LineNum {
		lo = ex.prog.TokenLineNo(ex.pos)
		ex.pos = ex.prog.Skip(ex.pos)
		single = true
	}
	if m[ex.pos] == byte(token.Comma) {
		ex.pos++
		single = false
		if m[ex.pos] == token.XLineNum || m[ex.pos] == token.LineNum {
			hi = ex.prog.TokenLineNo(ex.pos)
			ex.pos = ex.prog.Skip(ex.pos)
		}
	}
	if single {
		hi = lo
	}

	term := ex.env.Terminal()
	ex.prog.Lines(func(off int) bool {
		n := ex.prog.LineNo(off)
		if n >= lo && n <= hi {
			term.Println(lexer.Detokenise(m, off))
		}
		return n <= hi
	})
	term.Flush()
	return nil
}

// stmtNew throws the program and all variables away.
func (ex *Exec) stmtNew() error {
	ex.env.Scrap()
	ex.prog.Erase()
	if ex.line >= 0 {
		return errEnd
	}
	return nil
}

// stmtRun clears the variables and restarts at the first line.
func (ex *Exec) stmtRun() error {
	start := ex.prog.Start()
	if ex.prog.IsEnd(start) {
		return errEnd
	}
	ex.env.Clear()
	ex.env.SetRun(true)
	ex.enterLine(start)
	return nil
}

func (ex *Exec) fileName() (string, error) {
	v, err := ex.expr()
	if err != nil {
		return "", err
	}
	if !v.IsStr() {
		return "", berrors.New(berrors.TypeStr)
	}
	name := ex.env.StrFetch(v.S)
	ex.env.Stack.Release(v)
	if isURL(name) {
		return name, nil
	}
	if ex.env.Filepath != "" && !filepath.IsAbs(name) {
		name = filepath.Join(ex.env.Filepath, name)
	}
	return name, nil
}

func isURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

// fetch pulls program text from disk, or over HTTP when the name is a
// URL. A program library served by progserv looks like any other
// directory this way.
func (ex *Exec) fetch(name string) ([]byte, error) {
	if !isURL(name) {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, berrors.NewMsg(berrors.FileNotFound, "File not found: "+name)
		}
		return data, nil
	}
	resp, err := ex.env.GetClient().Get(name)
	if err != nil {
		return nil, berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, berrors.NewMsg(berrors.FileNotFound, "File not found: "+name)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return data, nil
}

// stmtLoad replaces the program with a tokenised text file. Every
// line must carry a line number.
func (ex *Exec) stmtLoad() error {
	name, err := ex.fileName()
	if err != nil {
		return err
	}
	data, err := ex.fetch(name)
	if err != nil {
		return err
	}
	ex.env.Scrap()
	ex.prog.Erase()
	for _, src := range strings.Split(string(data), "\n") {
		src = strings.TrimRight(src, "\r")
		if strings.TrimSpace(src) == "" {
			continue
		}
		line, numbered, err := lexer.Tokenise(src, 0)
		if err != nil {
			return err
		}
		if !numbered {
			return berrors.New(berrors.BadProgram)
		}
		if err := ex.prog.Insert(line); err != nil {
			return err
		}
	}
	if ex.line >= 0 {
		// the code being executed is gone
		return errEnd
	}
	return nil
}

// stmtSave writes the program out as numbered text.
func (ex *Exec) stmtSave() error {
	name, err := ex.fileName()
	if err != nil {
		return err
	}
	var b strings.Builder
	m := ex.ws.Mem
	ex.prog.Lines(func(off int) bool {
		b.WriteString(lexer.Detokenise(m, off))
		b.WriteByte('\n')
		return true
	})
	if err := os.WriteFile(name, []byte(b.String()), 0644); err != nil {
		return berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return nil
}
