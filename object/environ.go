package object

import (
	"io"
	"math/rand"
	"net/http"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/prog"
	"github.com/stardot/MatrixBrandy-sub002/settings"
)

// Console defines how to collect input and display output
type Console interface {
	// Cls clears the screen contents
	Cls()
	// Print outputs the passed string at the current cursor position
	Print(string)
	// Println prints the string followed by a newline
	Println(string)
	// Flush pushes any buffered output to the device
	Flush()
	// Locate moves the cursor to the desired (row, col)
	Locate(int, int)
	// GetCursor returns the cursor location (row, col)
	GetCursor() (int, int)
	// ReadKey returns one key, ok=false on end of input
	ReadKey() (byte, bool)
	// ReadLine collects a line of input, ok=false on escape or EOF
	ReadLine(prefill string, max int) (string, bool)
	// SoundBell emits a facsimile of a console beep
	SoundBell()
	// BreakCheck returns true if an escape was entered
	BreakCheck() bool
}

// Filesystem is the thin boundary the file statements go through.
type Filesystem interface {
	OpenIn(name string) (int, error)
	OpenOut(name string) (int, error)
	OpenUp(name string) (int, error)
	Close(h int) error
	CloseAll()
	Bget(h int) (byte, error)
	Bput(h int, b byte) error
	Ptr(h int) (int64, error)
	SetPtr(h int, off int64) error
	Ext(h int) (int64, error)
	Eof(h int) (bool, error)
}

// MOS is the operating system surface. Hosts without a real MOS
// emulate what they can and raise Unsupported for the rest.
type MOS interface {
	Oscli(cmd string) error
	Sys(num int64, in [10]int64, out *[10]int64) (int64, error)
	Time() int64 // centiseconds
	SetTime(int64)
	TimeDol() string
	SetTimeDol(string) error
	Wait(centiseconds int)
}

// HttpClient allows me to mock an http.Client, minimally
type HttpClient interface {
	Get(url string) (*http.Response, error)
}

// ErrorHandler records where ON ERROR resumes execution.
type ErrorHandler struct {
	Installed bool
	Addr      int // token address of the handler statements
	Line      int
	Local     bool
	Depth     int // stack depth to unwind to for a local handler
}

// Environment is the one owned interpreter state. Everything a handler
// touches hangs off it; there are no package globals.
type Environment struct {
	WS    *heap.Workspace
	Stack *Stack
	Prog  *prog.Program

	vars     map[string]*Variable
	Registry []*Variable // index used by resolved variable tokens
	statics  [27]*Variable
	Defs     []*FnProc // index used by resolved call tokens
	defIdx   map[string]int
	Cases    []*CaseTable // index used by resolved CASE tokens

	term     Console
	fs       Filesystem
	mos      MOS
	client   HttpClient
	settings *settings.Store

	rnd    *rand.Rand
	rndVal float64

	// run state
	Handler   ErrorHandler
	LastErr   *berrors.BasicError // feeds ERR, ERL and REPORT$
	DataCur   int                 // byte cursor into the program, 0 = unset
	DataText  bool                // cursor sits inside a DATA item list
	Filepath  string
	TraceSink io.Writer
	run       bool
}

// NewEnvironment wires up an interpreter state around a console.
func NewEnvironment(term Console, ws *heap.Workspace) *Environment {
	env := &Environment{
		WS:       ws,
		term:     term,
		vars:     make(map[string]*Variable),
		defIdx:   make(map[string]int),
		settings: settings.NewStore(),
	}
	env.Stack = NewStack(ws)
	env.Prog = prog.New(ws)
	env.rnd = rand.New(rand.NewSource(37))
	env.rndVal = env.rnd.Float64()
	env.client = http.DefaultClient

	for i := 0; i < 26; i++ {
		v := &Variable{Name: string(rune('A'+i)) + "%", Kind: VarIntWord}
		env.statics[i] = v
	}
	env.statics[26] = &Variable{Name: "@%", Kind: VarFormat, Val: IntVal(0x90A)}
	return env
}

// Terminal allows access to the terminal console
func (e *Environment) Terminal() Console { return e.term }

func (e *Environment) Settings() *settings.Store { return e.settings }

func (e *Environment) FS() Filesystem { return e.fs }

func (e *Environment) SetFS(fs Filesystem) { e.fs = fs }

func (e *Environment) Mos() MOS { return e.mos }

func (e *Environment) SetMos(m MOS) { e.mos = m }

// GetClient returns my http client
func (e *Environment) GetClient() HttpClient { return e.client }

// SetClient setter for the client element
// mostly used for testing
func (e *Environment) SetClient(cl HttpClient) { e.client = cl }

// SetRun controls the "a program is running" state
func (e *Environment) SetRun(run bool) { e.run = run }

// ProgramRunning is a quick test for statements that only make sense
// inside a running program.
func (e *Environment) ProgramRunning() bool { return e.run }

// Random returns a random number between 0 and 1. Positive x draws a
// fresh value, otherwise the last one is repeated.
func (e *Environment) Random(x int) float64 {
	if x > 0 {
		e.rndVal = e.rnd.Float64()
	}
	return e.rndVal
}

// RandomInt returns a draw from 1..n.
func (e *Environment) RandomInt(n int32) int32 {
	return e.rnd.Int31n(n) + 1
}

// Randomize takes in a new seed and starts a new random series
func (e *Environment) Randomize(seed int64) {
	e.rnd = rand.New(rand.NewSource(seed))
	e.rndVal = e.rnd.Float64()
}

// Static returns one of the 27 predefined variables, A%..Z% and @%.
func (e *Environment) Static(i int) *Variable {
	return e.statics[i]
}

// FormatVar is the @% record.
func (e *Environment) FormatVar() *Variable { return e.statics[26] }

// FindVariable looks a name up in the directory. Static names resolve
// to the fixed table.
func (e *Environment) FindVariable(name string) *Variable {
	if v := e.staticFor(name); v != nil {
		return v
	}
	return e.vars[name]
}

func (e *Environment) staticFor(name string) *Variable {
	if len(name) == 2 && name[1] == '%' {
		if name[0] >= 'A' && name[0] <= 'Z' {
			return e.statics[name[0]-'A']
		}
		if name[0] == '@' {
			return e.statics[26]
		}
	}
	return nil
}

// CreateVariable makes a record with the zero value of the kind the
// name's sigil implies, and files it in the directory.
func (e *Environment) CreateVariable(name string, array bool) *Variable {
	v := &Variable{Name: name, Kind: KindForName(name, array)}
	if v.Kind == VarStrDol {
		v.Val = Value{Kind: StringK, S: StrDesc{Ptr: heap.Empty}}
	} else {
		v.Val = Value{Kind: v.Kind.ScalarKind()}
	}
	e.vars[name] = v
	return v
}

// Register adds a variable to the token resolution registry and
// returns its index.
func (e *Environment) Register(v *Variable) int {
	e.Registry = append(e.Registry, v)
	return len(e.Registry) - 1
}

// RegisterDef caches a DEF PROC/FN record.
func (e *Environment) RegisterDef(d *FnProc) int {
	key := d.Name
	if d.IsFn {
		key = "FN" + key
	}
	e.Defs = append(e.Defs, d)
	e.defIdx[key] = len(e.Defs) - 1
	return len(e.Defs) - 1
}

// FindDef retrieves a cached definition by name, -1 when unknown.
func (e *Environment) FindDef(name string, isFn bool) int {
	key := name
	if isFn {
		key = "FN" + key
	}
	if i, ok := e.defIdx[key]; ok {
		return i
	}
	return -1
}

// RegisterCase files a CASE branch table and returns its handle.
func (e *Environment) RegisterCase(ct *CaseTable) int {
	e.Cases = append(e.Cases, ct)
	return len(e.Cases) - 1
}

// Clear wipes the dynamic variables and the heap, as CLEAR does. The
// static variables keep their values and the resolved tokens in the
// program stay valid: registry slots survive, their records are just
// reset to zero values.
func (e *Environment) Clear() {
	for _, v := range e.Registry {
		if v == e.staticFor(v.Name) {
			continue
		}
		switch v.Kind {
		case VarStrDol:
			v.Val = Value{Kind: StringK, S: StrDesc{Ptr: heap.Empty}}
		case VarFn, VarProc:
		default:
			v.Arr = nil
			v.Val = Value{Kind: v.Kind.ScalarKind()}
		}
	}
	for _, v := range e.vars {
		switch v.Kind {
		case VarStrDol:
			v.Val = Value{Kind: StringK, S: StrDesc{Ptr: heap.Empty}}
		case VarFn, VarProc:
		default:
			v.Arr = nil
			v.Val = Value{Kind: v.Kind.ScalarKind()}
		}
	}
	e.Stack.Clear()
	e.WS.ClearHeap()
	e.Handler = ErrorHandler{}
	e.DataCur = 0
	e.DataText = false
}

// Scrap throws everything away, including the registries, for NEW and
// program edits. The program's resolved tokens are unresolved by the
// caller.
func (e *Environment) Scrap() {
	e.vars = make(map[string]*Variable)
	e.Registry = nil
	e.Defs = nil
	e.defIdx = make(map[string]int)
	e.Cases = nil
	e.Stack.Clear()
	e.WS.ClearHeap()
	e.Handler = ErrorHandler{}
	e.LastErr = nil
	e.DataCur = 0
	e.DataText = false
}

// StrFetch copies a descriptor's bytes out as a Go string.
func (e *Environment) StrFetch(d StrDesc) string {
	if d.Len == 0 {
		return ""
	}
	return string(e.WS.Mem[d.Ptr : d.Ptr+d.Len])
}

// StrStore allocates heap space for a Go string and returns its
// descriptor.
func (e *Environment) StrStore(s string) (StrDesc, error) {
	if len(s) > MaxString {
		return StrDesc{}, berrors.New(berrors.StringTooLong)
	}
	p, err := e.WS.Alloc(len(s))
	if err != nil {
		return StrDesc{}, err
	}
	copy(e.WS.Mem[p:], s)
	return StrDesc{Ptr: p, Len: len(s)}, nil
}
