package evaluator

import (
	"math"
	"strings"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/builtins"
	"github.com/stardot/MatrixBrandy-sub002/object"
	"github.com/stardot/MatrixBrandy-sub002/token"
)

// stmtPrint walks a PRINT list. Numbers are right justified in the
// field width of @% until a ; switches justification off; , pads to
// the next field boundary; ' forces a newline; ~ switches the
// numeric base to hex for the rest of the statement.
func (ex *Exec) stmtPrint() error {
	m := ex.ws.Mem
	if m[ex.pos] == byte(token.Hash) {
		return ex.printChannel()
	}
	term := ex.env.Terminal()
	format := int32(ex.env.FormatVar().Val.I)
	width := builtins.Width(format)
	right := true
	hex := false
	trail := true

list:
	for {
		switch t := m[ex.pos]; t {
		case token.EOL, byte(token.Colon), token.XElse, token.Else:
			break list
		case byte(token.Semicolon):
			right = false
			trail = true
			ex.pos++
		case byte(token.Comma):
			right = true
			trail = true
			ex.pos++
			if width > 0 {
				_, col := term.GetCursor()
				if r := col % width; r != 0 {
					term.Print(strings.Repeat(" ", width-r))
				}
			}
		case byte(token.Apostrope):
			term.Println("")
			trail = true
			ex.pos++
		case byte(token.Tilde):
			hex = true
			trail = true
			ex.pos++
		case token.FuncTok:
			switch m[ex.pos+1] {
			case token.FnTab:
				if err := ex.printTab(); err != nil {
					return err
				}
			case token.FnSpc:
				ex.pos += 2
				v, err := ex.unary()
				if err != nil {
					return err
				}
				n, err := v.AsInt32()
				if err != nil {
					return err
				}
				if n > 0 {
					term.Print(strings.Repeat(" ", int(n)))
				}
			default:
				s, err := ex.printItem(format, width, right, hex)
				if err != nil {
					return err
				}
				term.Print(s)
				trail = false
				continue
			}
			trail = true
		default:
			s, err := ex.printItem(format, width, right, hex)
			if err != nil {
				return err
			}
			term.Print(s)
			trail = false
		}
	}
	if !trail {
		term.Println("")
	}
	term.Flush()
	return nil
}

func (ex *Exec) printItem(format int32, width int, right, hex bool) (string, error) {
	v, err := ex.expr()
	if err != nil {
		return "", err
	}
	if v.IsStr() {
		s := ex.env.StrFetch(v.S)
		ex.env.Stack.Release(v)
		return s, nil
	}
	var s string
	if hex {
		s, err = builtins.FormatHex(v)
		if err != nil {
			return "", err
		}
	} else {
		s = builtins.FormatNum(format, v)
	}
	if right && width > len(s) {
		s = strings.Repeat(" ", width-len(s)) + s
	}
	return s, nil
}

// printTab handles TAB(n) as a column seek and TAB(x,y) as a cursor
// move.
func (ex *Exec) printTab() error {
	m := ex.ws.Mem
	term := ex.env.Terminal()
	ex.pos += 2
	if m[ex.pos] != byte(token.LParen) {
		return berrors.New(berrors.MissingParen)
	}
	ex.pos++
	v, err := ex.expr()
	if err != nil {
		return err
	}
	x, err := v.AsInt32()
	if err != nil {
		return err
	}
	if m[ex.pos] == byte(token.Comma) {
		ex.pos++
		v, err = ex.expr()
		if err != nil {
			return err
		}
		y, err := v.AsInt32()
		if err != nil {
			return err
		}
		if m[ex.pos] != byte(token.RParen) {
			return berrors.New(berrors.MissingParen)
		}
		ex.pos++
		term.Locate(int(y), int(x))
		return nil
	}
	if m[ex.pos] != byte(token.RParen) {
		return berrors.New(berrors.MissingParen)
	}
	ex.pos++
	_, col := term.GetCursor()
	if col > int(x) {
		term.Println("")
		col = 0
	}
	if int(x) > col {
		term.Print(strings.Repeat(" ", int(x)-col))
	}
	return nil
}

// stmtInput prompts and reads values from the console. A literal
// followed by ; gets a question mark appended; followed by , it does
// not. Numeric fields that fail to parse reprompt.
func (ex *Exec) stmtInput() error {
	m := ex.ws.Mem
	if m[ex.pos] == byte(token.Hash) {
		return ex.inputChannel()
	}
	term := ex.env.Terminal()
	pend := ""
	havePend := false
	qm := true

	for {
		switch t := m[ex.pos]; t {
		case token.EOL, byte(token.Colon), token.XElse, token.Else:
			return nil
		case token.StringLit:
			n := int(m[ex.pos+1]) | int(m[ex.pos+2])<<8
			term.Print(string(m[ex.pos+3 : ex.pos+3+n]))
			ex.pos += 3 + n
			qm = m[ex.pos] == byte(token.Semicolon)
			if m[ex.pos] == byte(token.Semicolon) || m[ex.pos] == byte(token.Comma) {
				ex.pos++
			}
		case byte(token.Semicolon), byte(token.Comma):
			ex.pos++
		case byte(token.Apostrope):
			term.Println("")
			ex.pos++
		default:
			lv, err := ex.lvalue(true)
			if err != nil {
				return err
			}
			isStr := lv.Kind == object.VarStrDol || lv.Kind == object.VarStrArray ||
				lv.Kind == object.VarDolStrPtr || lv.Kind == object.VarTimeDol ||
				lv.Kind == object.VarFilepath
			for {
				if !havePend {
					if qm {
						term.Print("?")
					}
					term.Flush()
					s, ok := term.ReadLine("", object.MaxString)
					if !ok {
						return berrors.New(berrors.Escape)
					}
					pend = s
					havePend = true
					qm = true
				}
				field := pend
				if i := strings.IndexByte(pend, ','); i >= 0 {
					field, pend = pend[:i], pend[i+1:]
				} else {
					pend = ""
					havePend = false
				}
				field = strings.TrimLeft(field, " ")
				if isStr {
					d, err := ex.env.StrStore(field)
					if err != nil {
						return err
					}
					if err := ex.store(lv, object.TempStr(d)); err != nil {
						return err
					}
					break
				}
				v, n := builtins.ParseNum(field)
				if n == 0 {
					// not a number, ask again
					havePend = false
					continue
				}
				if err := ex.store(lv, v); err != nil {
					return err
				}
				break
			}
			if m[ex.pos] == byte(token.Comma) {
				ex.pos++
			}
		}
	}
}

// stmtRead assigns the next DATA fields to a list of variables.
func (ex *Exec) stmtRead() error {
	m := ex.ws.Mem
	for {
		lv, err := ex.lvalue(true)
		if err != nil {
			return err
		}
		field, err := ex.nextDataField()
		if err != nil {
			return err
		}
		switch lv.Kind {
		case object.VarStrDol, object.VarStrArray, object.VarDolStrPtr,
			object.VarTimeDol, object.VarFilepath:
			d, err := ex.env.StrStore(field)
			if err != nil {
				return err
			}
			if err := ex.store(lv, object.TempStr(d)); err != nil {
				return err
			}
		default:
			v, n := builtins.ParseNum(strings.TrimSpace(field))
			if n == 0 {
				return berrors.New(berrors.TypeNum)
			}
			if err := ex.store(lv, v); err != nil {
				return err
			}
		}
		if m[ex.pos] != byte(token.Comma) {
			return nil
		}
		ex.pos++
	}
}

// nextDataField advances the DATA cursor and returns one raw field.
// The cursor is a line header while hunting for the next DATA
// statement and a raw text offset while consuming one.
func (ex *Exec) nextDataField() (string, error) {
	m := ex.ws.Mem
	if ex.env.DataCur == 0 {
		ex.env.DataCur = ex.prog.Start()
		ex.env.DataText = false
	}
	if !ex.env.DataText {
		hdr := ex.env.DataCur
		for {
			if ex.prog.IsEnd(hdr) {
				return "", berrors.New(berrors.OutOfData)
			}
			q := ex.prog.Tokens(hdr)
			for m[q] != token.EOL {
				if m[q] == token.Data {
					ex.env.DataCur = q + 1
					ex.env.DataText = true
					break
				}
				q = ex.prog.Skip(q)
			}
			if ex.env.DataText {
				break
			}
			hdr = q + 1
		}
	}

	i := ex.env.DataCur
	for m[i] == ' ' {
		i++
	}
	var s string
	if m[i] == '"' {
		i++
		var b []byte
		for m[i] != token.EOL {
			if m[i] == '"' {
				if m[i+1] == '"' {
					b = append(b, '"')
					i += 2
					continue
				}
				i++
				break
			}
			b = append(b, m[i])
			i++
		}
		s = string(b)
		for m[i] != byte(token.Comma) && m[i] != token.EOL {
			i++
		}
	} else {
		st := i
		for m[i] != byte(token.Comma) && m[i] != token.EOL {
			i++
		}
		s = strings.TrimRight(string(m[st:i]), " ")
	}
	if m[i] == byte(token.Comma) {
		ex.env.DataCur = i + 1
	} else {
		ex.env.DataCur = i + 1 // next line header
		ex.env.DataText = false
	}
	return s, nil
}

// stmtRestore resets the DATA cursor, or pops a saved error handler
// or cursor pushed by the LOCAL forms.
func (ex *Exec) stmtRestore() error {
	m := ex.ws.Mem
	switch m[ex.pos] {
	case token.EOL, byte(token.Colon):
		ex.env.DataCur = 0
		ex.env.DataText = false
		return nil
	case token.Error:
		ex.pos++
		if !ex.env.Stack.EmptyTo(object.ErrorItem) {
			return berrors.New(berrors.Syntax)
		}
		ef := ex.env.Stack.Pop().(*object.ErrorFrame)
		ex.env.Handler = ef.Saved
		return nil
	case token.Data:
		ex.pos = ex.prog.Skip(ex.pos)
		if !ex.env.Stack.EmptyTo(object.DataItem) {
			return berrors.New(berrors.Syntax)
		}
		df := ex.env.Stack.Pop().(*object.DataFrame)
		ex.env.DataCur = df.Cur
		ex.env.DataText = df.Text
		return nil
	}
	hdr, err := ex.lineNumTarget()
	if err != nil {
		return err
	}
	ex.env.DataCur = hdr
	ex.env.DataText = false
	return nil
}

// Channel records use a tag byte: &40 a 32 bit int, &41 a 64 bit int,
// &88 an 8 byte float, &00 a string of up to 255 reversed bytes.
const (
	recInt    = 0x40
	recInt64  = 0x41
	recFloat  = 0x88
	recString = 0x00
)

func (ex *Exec) channelArg() (int, error) {
	m := ex.ws.Mem
	if m[ex.pos] != byte(token.Hash) {
		return 0, berrors.New(berrors.MissingHash)
	}
	ex.pos++
	v, err := ex.unary()
	if err != nil {
		return 0, err
	}
	h, err := v.AsInt32()
	if err != nil {
		return 0, err
	}
	return int(h), nil
}

func (ex *Exec) printChannel() error {
	m := ex.ws.Mem
	h, err := ex.channelArg()
	if err != nil {
		return err
	}
	fs := ex.env.FS()
	for m[ex.pos] == byte(token.Comma) {
		ex.pos++
		v, err := ex.expr()
		if err != nil {
			return err
		}
		if err := writeRecord(fs, h, v, ex.env); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(fs object.Filesystem, h int, v object.Value, env *object.Environment) error {
	put := func(b byte) error { return fs.Bput(h, b) }
	switch v.Kind {
	case object.IntK, object.Uint8K:
		if err := put(recInt); err != nil {
			return err
		}
		u := uint32(int32(v.I))
		for s := 24; s >= 0; s -= 8 {
			if err := put(byte(u >> s)); err != nil {
				return err
			}
		}
	case object.Int64K:
		if err := put(recInt64); err != nil {
			return err
		}
		u := uint64(v.I)
		for s := 56; s >= 0; s -= 8 {
			if err := put(byte(u >> s)); err != nil {
				return err
			}
		}
	case object.FloatK:
		if err := put(recFloat); err != nil {
			return err
		}
		u := math.Float64bits(v.F)
		for s := 56; s >= 0; s -= 8 {
			if err := put(byte(u >> s)); err != nil {
				return err
			}
		}
	default:
		s := env.StrFetch(v.S)
		env.Stack.Release(v)
		if len(s) > 255 {
			s = s[:255]
		}
		if err := put(recString); err != nil {
			return err
		}
		if err := put(byte(len(s))); err != nil {
			return err
		}
		for i := len(s) - 1; i >= 0; i-- {
			if err := put(s[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ex *Exec) inputChannel() error {
	m := ex.ws.Mem
	h, err := ex.channelArg()
	if err != nil {
		return err
	}
	for m[ex.pos] == byte(token.Comma) {
		ex.pos++
		lv, err := ex.lvalue(true)
		if err != nil {
			return err
		}
		v, err := ex.readRecord(h)
		if err != nil {
			return err
		}
		if err := ex.store(lv, v); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exec) readRecord(h int) (object.Value, error) {
	fs := ex.env.FS()
	get := func() (byte, error) { return fs.Bget(h) }
	tag, err := get()
	if err != nil {
		return object.Value{}, err
	}
	switch tag {
	case recInt:
		var u uint32
		for i := 0; i < 4; i++ {
			b, err := get()
			if err != nil {
				return object.Value{}, err
			}
			u = u<<8 | uint32(b)
		}
		return object.IntVal(int32(u)), nil
	case recInt64, recFloat:
		var u uint64
		for i := 0; i < 8; i++ {
			b, err := get()
			if err != nil {
				return object.Value{}, err
			}
			u = u<<8 | uint64(b)
		}
		if tag == recInt64 {
			return object.Int64Val(int64(u)), nil
		}
		return object.FloatVal(math.Float64frombits(u)), nil
	case recString:
		n, err := get()
		if err != nil {
			return object.Value{}, err
		}
		b := make([]byte, n)
		for i := int(n) - 1; i >= 0; i-- {
			c, err := get()
			if err != nil {
				return object.Value{}, err
			}
			b[i] = c
		}
		d, err := ex.env.StrStore(string(b))
		if err != nil {
			return object.Value{}, err
		}
		return object.TempStr(d), nil
	}
	return object.Value{}, berrors.New(berrors.TypeMismatch)
}
