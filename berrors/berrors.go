// Package berrors holds the numeric error codes the interpreter reports.
package berrors

import "fmt"

const (
	NextWithoutFor = iota + 1
	Syntax
	ReturnWoGosub
	OutOfData
	Range
	Overflow
	OutOfMemory
	UndefinedLineNumber
	SubscriptRange
	DuplicateDim // 10
	DivByZero
	TypeNum
	TypeStr
	TypeMismatch
	StringTooLong
	LineTooLong
	BadHexConstant
	BadBinConstant
	MissingQuote
	Escape // 20
	StopRequest
	Silly
	UntilWithoutRepeat
	EndwhileWithoutWhile
	EndprocWithoutProc
	ReturnOutsideFn
	MissingThen
	MissingOf
	MissingEquals
	MissingComma // 30
	MissingParen
	MissingHash
	MissingEndif
	MissingEndwhile
	MissingEndcase
	MissingNext
	MissingUntil
	NoSuchVariable
	NoSuchFnProc
	BadArgCount // 40
	IntArrayNeeded
	FpArrayNeeded
	StrArrayNeeded
	ArraySizeMismatch
	BadDimension
	BadArith
	BadBitwise
	NotLocal
	NotInProc
	ExitWithoutLoop // 50
	TooManyWhens
	BadFormat
	ErrorInError
	Unsupported
	CmdFail
	BadProgram
	FileNotFound
	BadChannel
	UserError // errors raised by the ERROR statement land here and up
)

// TextForError returns the error text based on error number
func TextForError(err int) string {
	switch err {
	case NextWithoutFor:
		return "NEXT without FOR"
	case Syntax:
		return "Syntax error"
	case ReturnWoGosub:
		return "RETURN without GOSUB"
	case OutOfData:
		return "Out of DATA"
	case Range:
		return "Number out of range"
	case Overflow:
		return "Overflow"
	case OutOfMemory:
		return "No room"
	case UndefinedLineNumber:
		return "Undefined line number"
	case SubscriptRange:
		return "Subscript out of range"
	case DuplicateDim:
		return "Already dimensioned"
	case DivByZero:
		return "Division by zero"
	case TypeNum:
		return "Number needed"
	case TypeStr:
		return "String needed"
	case TypeMismatch:
		return "Type mismatch"
	case StringTooLong:
		return "String too long"
	case LineTooLong:
		return "Line too long"
	case BadHexConstant:
		return "Bad hexadecimal constant"
	case BadBinConstant:
		return "Bad binary constant"
	case MissingQuote:
		return "Missing \""
	case Escape:
		return "Escape"
	case StopRequest:
		return "STOP"
	case Silly:
		return "Silly"
	case UntilWithoutRepeat:
		return "UNTIL without REPEAT"
	case EndwhileWithoutWhile:
		return "ENDWHILE without WHILE"
	case EndprocWithoutProc:
		return "Not in a procedure"
	case ReturnOutsideFn:
		return "Not in a function"
	case MissingThen:
		return "Missing THEN"
	case MissingOf:
		return "Missing OF"
	case MissingEquals:
		return "Missing ="
	case MissingComma:
		return "Missing ,"
	case MissingParen:
		return "Missing )"
	case MissingHash:
		return "Missing #"
	case MissingEndif:
		return "Missing ENDIF"
	case MissingEndwhile:
		return "Missing ENDWHILE"
	case MissingEndcase:
		return "Missing ENDCASE"
	case MissingNext:
		return "Missing NEXT"
	case MissingUntil:
		return "Missing UNTIL"
	case NoSuchVariable:
		return "No such variable"
	case NoSuchFnProc:
		return "No such procedure or function"
	case BadArgCount:
		return "Wrong number of arguments"
	case IntArrayNeeded:
		return "Integer array needed"
	case FpArrayNeeded:
		return "Floating point array needed"
	case StrArrayNeeded:
		return "String array needed"
	case ArraySizeMismatch:
		return "Array sizes do not match"
	case BadDimension:
		return "Bad array dimension"
	case BadArith:
		return "Arithmetic on strings"
	case BadBitwise:
		return "Bitwise operation on strings"
	case NotLocal:
		return "Not LOCAL"
	case NotInProc:
		return "Not in a procedure"
	case ExitWithoutLoop:
		return "EXIT outside a loop"
	case TooManyWhens:
		return "Too many WHEN clauses"
	case BadFormat:
		return "Bad @% format"
	case ErrorInError:
		return "Error in error handler"
	case Unsupported:
		return "Unsupported on this platform"
	case CmdFail:
		return "Command failed"
	case BadProgram:
		return "Bad program"
	case FileNotFound:
		return "File not found"
	case BadChannel:
		return "Channel"
	}

	return "Unprintable error"
}

// BasicError is what statement handlers raise. It travels up the call
// chain as an ordinary error until the run loop finds the installed
// handler for it.
type BasicError struct {
	Code int    // error number, visible to ERR
	Msg  string // report text, visible to REPORT$
	Line int    // BASIC line number in force when raised, -1 when immediate
}

func (e *BasicError) Error() string {
	if e.Line < 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s at line %d", e.Msg, e.Line)
}

// New builds an error for a code using its standard text.
func New(code int) *BasicError {
	return &BasicError{Code: code, Msg: TextForError(code), Line: -1}
}

// NewMsg builds an error with bespoke text, as the ERROR statement does.
func NewMsg(code int, msg string) *BasicError {
	return &BasicError{Code: code, Msg: msg, Line: -1}
}
