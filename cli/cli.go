// Package cli is the interactive command loop. A numbered line edits
// the stored program; anything else runs immediately.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goforj/godump"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/evaluator"
	"github.com/stardot/MatrixBrandy-sub002/lexer"
	"github.com/stardot/MatrixBrandy-sub002/object"
)

// Start prints the banner and reads commands until QUIT or end of
// input.
func Start(env *object.Environment) {
	term := env.Terminal()
	ex := evaluator.New(env)

	term.Println("BASIC V interpreter")
	term.Println(fmt.Sprintf("Starting with %d bytes free", env.WS.Himem-env.WS.Lomem))
	term.Println("")

	for {
		term.Print(">")
		term.Flush()
		line, ok := term.ReadLine("", 0)
		if !ok {
			return
		}
		if err := execCommand(line, ex, env); err != nil {
			return
		}
	}
}

// execCommand handles one input line. The returned error is only ever
// the quit sentinel; everything else is reported on the console.
func execCommand(line string, ex *evaluator.Exec, env *object.Environment) error {
	term := env.Terminal()
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	// *DUMP shows interpreter state without disturbing it
	if strings.EqualFold(line, "*DUMP") {
		godump.Dump(env.Registry)
		godump.Dump(env.Handler)
		return nil
	}

	toks, numbered, err := lexer.Tokenise(line, 0)
	if err != nil {
		giveError(err, env)
		return nil
	}

	if numbered {
		storeLine(toks, env)
		return nil
	}

	err = ex.Immediate(toks)
	switch {
	case err == nil:
	case errors.Is(err, evaluator.ErrQuit):
		return err
	default:
		// basic errors were already reported by the run loop
		var be *berrors.BasicError
		if !errors.As(err, &be) {
			term.Println(err.Error())
		}
	}
	term.Flush()
	return nil
}

// storeLine inserts or deletes a numbered line. Any edit moves lines,
// so cached token addresses are stale; unresolve them and throw the
// variables away.
func storeLine(toks []byte, env *object.Environment) {
	if err := env.Prog.Insert(toks); err != nil {
		giveError(err, env)
		return
	}
	env.Scrap()
	env.Prog.ClearRefs()
}

func giveError(err error, env *object.Environment) {
	env.Terminal().Println(err.Error())
	env.Terminal().Flush()
}
