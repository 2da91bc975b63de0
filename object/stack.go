package object

import (
	"github.com/stardot/MatrixBrandy-sub002/berrors"
	"github.com/stardot/MatrixBrandy-sub002/heap"
)

// ItemTag discriminates what a stack slot holds.
type ItemTag int

const (
	OperandItem ItemTag = iota
	ArrayItem
	ForItem
	WhileItem
	RepeatItem
	GosubItem
	ProcItem
	FnItem
	ErrorItem
	DataItem
	LocalItem
	NoItem // returned when the stack is empty
)

// Item is anything that can sit on the combined operand/control stack.
type Item interface {
	Tag() ItemTag
}

// Operand carries one scalar value, possibly an owned string temporary.
type Operand struct {
	Val Value
}

func (o *Operand) Tag() ItemTag { return OperandItem }

// ArrayOperand carries a whole-array operand. Temp marks an owned
// intermediate result.
type ArrayOperand struct {
	Arr  *Array
	Temp bool
}

func (a *ArrayOperand) Tag() ItemTag { return ArrayItem }

// ForFrame records a running FOR loop. The iterator is kept as an
// lvalue so NEXT can update whatever storage the loop variable names.
type ForFrame struct {
	Lv       Lvalue
	Body     int // token address of the first statement in the loop
	BodyLine int
	Limit    Value
	Step     Value
	Simple   bool // i32 iterator with step +1
}

func (f *ForFrame) Tag() ItemTag { return ForItem }

// WhileFrame records where the condition of a WHILE loop lives.
type WhileFrame struct {
	Cond     int // token address of the condition expression
	CondLine int
}

func (w *WhileFrame) Tag() ItemTag { return WhileItem }

// RepeatFrame records the body address of a REPEAT loop.
type RepeatFrame struct {
	Body     int
	BodyLine int
}

func (r *RepeatFrame) Tag() ItemTag { return RepeatItem }

// GosubFrame records where RETURN resumes.
type GosubFrame struct {
	Ret     int
	RetLine int
}

func (g *GosubFrame) Tag() ItemTag { return GosubItem }

// CallFrame records a PROC or FN invocation. Parameter backups sit
// below the frame as LocalSave items, NParms of them.
type CallFrame struct {
	Def     *FnProc
	Ret     int
	RetLine int
	NParms  int
	SpMark  int // byte-block stack pointer to restore on return
	Depth   int // stack length just below this frame's saves
}

func (c *CallFrame) Tag() ItemTag {
	if c.Def.IsFn {
		return FnItem
	}
	return ProcItem
}

// ErrorFrame preserves a handler displaced by ON ERROR LOCAL or
// LOCAL ERROR.
type ErrorFrame struct {
	Saved ErrorHandler
}

func (e *ErrorFrame) Tag() ItemTag { return ErrorItem }

// DataFrame preserves the DATA cursor across LOCAL DATA.
type DataFrame struct {
	Cur  int
	Text bool
}

func (d *DataFrame) Tag() ItemTag { return DataItem }

// LocalSave holds a variable's displaced contents for restoration when
// the routine exits.
type LocalSave struct {
	Var  *Variable
	Kind VarKind
	Val  Value
	Arr  *Array
}

func (l *LocalSave) Tag() ItemTag { return LocalItem }

// Stack is the single typed operand and control stack. It needs the
// workspace so discarding an owned string temporary can free it.
type Stack struct {
	items []Item
	ws    *heap.Workspace
}

func NewStack(ws *heap.Workspace) *Stack {
	return &Stack{ws: ws}
}

func (s *Stack) Len() int { return len(s.items) }

func (s *Stack) Push(it Item) {
	s.items = append(s.items, it)
}

// Pop removes and returns the top item. Ownership of any temporary
// moves to the caller.
func (s *Stack) Pop() Item {
	if len(s.items) == 0 {
		return nil
	}
	it := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return it
}

// Top returns the top item without popping, nil when empty.
func (s *Stack) Top() Item {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

func (s *Stack) TopTag() ItemTag {
	if len(s.items) == 0 {
		return NoItem
	}
	return s.items[len(s.items)-1].Tag()
}

// PushVal pushes a scalar operand.
func (s *Stack) PushVal(v Value) {
	s.Push(&Operand{Val: v})
}

// PopVal pops a scalar operand. Anything else on top is an internal
// statement-balance fault and reports a type error.
func (s *Stack) PopVal() (Value, error) {
	it := s.Pop()
	if it == nil {
		return Value{}, berrors.New(berrors.TypeMismatch)
	}
	op, ok := it.(*Operand)
	if !ok {
		s.Push(it)
		return Value{}, berrors.New(berrors.TypeMismatch)
	}
	return op.Val, nil
}

// Release frees a string temporary once its consumer is done with it.
func (s *Stack) Release(v Value) {
	if v.Kind == StrTempK && v.S.Len > 0 {
		s.ws.Free(v.S.Ptr, v.S.Len)
	}
}

// ReleaseArray frees the element strings of an owned temporary array.
func (s *Stack) ReleaseArray(a *ArrayOperand) {
	if !a.Temp || a.Arr.ElemKind != StringK {
		return
	}
	for _, d := range a.Arr.Strs {
		if d.Len > 0 {
			s.ws.Free(d.Ptr, d.Len)
		}
	}
}

// discard releases whatever the item owns.
func (s *Stack) discard(it Item) {
	switch v := it.(type) {
	case *Operand:
		s.Release(v.Val)
	case *ArrayOperand:
		s.ReleaseArray(v)
	}
}

// DropOperands pops operand detritus until a control frame (or bottom)
// is exposed, releasing owned temporaries.
func (s *Stack) DropOperands() {
	for {
		t := s.TopTag()
		if t != OperandItem && t != ArrayItem {
			return
		}
		s.discard(s.Pop())
	}
}

// EmptyTo discards items, operands and frames alike, until a frame of
// the wanted tag is exposed. Reports false when no such frame exists.
func (s *Stack) EmptyTo(tag ItemTag) bool {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Tag() == tag {
			for len(s.items) > i+1 {
				s.discard(s.Pop())
			}
			return true
		}
	}
	return false
}

// Clear throws the whole stack away, releasing temporaries. Used by the
// outer error restart and by CLEAR.
func (s *Stack) Clear() {
	for len(s.items) > 0 {
		s.discard(s.Pop())
	}
}

// TruncateTo discards down to a recorded depth.
func (s *Stack) TruncateTo(depth int) {
	for len(s.items) > depth {
		s.discard(s.Pop())
	}
}

// HasFrame reports whether a frame of the tag is anywhere on the stack.
func (s *Stack) HasFrame(tag ItemTag) bool {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Tag() == tag {
			return true
		}
	}
	return false
}

// restore puts a LocalSave back into its variable.
func (s *Stack) restore(ls *LocalSave) {
	v := ls.Var
	switch ls.Kind {
	case VarIntArray, VarUint8Array, VarInt64Array, VarFloatArray, VarStrArray:
		if v.Arr != nil && v.Arr != ls.Arr && v.Arr.ElemKind == StringK && v.Arr.Storage == Owned {
			for _, d := range v.Arr.Strs {
				if d.Len > 0 {
					s.ws.Free(d.Ptr, d.Len)
				}
			}
		}
		v.Arr = ls.Arr
	case VarStrDol:
		if v.Val.S.Len > 0 {
			s.ws.Free(v.Val.S.Ptr, v.Val.S.Len)
		}
		v.Val = ls.Val
	default:
		v.Val = ls.Val
	}
}

// UnwindLocal pops LocalSave items, restoring each variable, and drops
// any operand detritus, until a non-local frame is exposed. The tag of
// that frame is returned; an exposed ErrorFrame tells the caller to pop
// it and reinstall the saved handler.
func (s *Stack) UnwindLocal() ItemTag {
	for {
		switch s.TopTag() {
		case LocalItem:
			s.restore(s.Pop().(*LocalSave))
		case OperandItem, ArrayItem:
			s.discard(s.Pop())
		default:
			return s.TopTag()
		}
	}
}

// PopSaves restores n parameter backups sitting on top of the stack.
func (s *Stack) PopSaves(n int) {
	for i := 0; i < n; i++ {
		if ls, ok := s.Top().(*LocalSave); ok {
			s.restore(ls)
			s.Pop()
		}
	}
}
