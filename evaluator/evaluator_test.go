package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardot/MatrixBrandy-sub002/heap"
	"github.com/stardot/MatrixBrandy-sub002/lexer"
	"github.com/stardot/MatrixBrandy-sub002/mocks"
	"github.com/stardot/MatrixBrandy-sub002/object"
)

func testExec() (*Exec, *mocks.MockTerm) {
	mt := mocks.NewMockTerm()
	env := object.NewEnvironment(mt, heap.New(heap.MinSize))
	return New(env), mt
}

func loadProg(t *testing.T, ex *Exec, lines []string) {
	t.Helper()
	for _, src := range lines {
		tk, numbered, err := lexer.Tokenise(src, 0)
		require.NoError(t, err, src)
		require.True(t, numbered, src)
		require.NoError(t, ex.prog.Insert(tk))
	}
}

func runProg(t *testing.T, lines []string) (string, error) {
	t.Helper()
	ex, mt := testExec()
	loadProg(t, ex, lines)
	err := ex.Run()
	return mt.Out.String(), err
}

func runLine(t *testing.T, ex *Exec, src string) error {
	t.Helper()
	tk, numbered, err := lexer.Tokenise(src, 0)
	require.NoError(t, err)
	require.False(t, numbered)
	return ex.Immediate(tk)
}

func TestPrintSeparators(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`10 PRINT ;1+2`, "3\n"},
		{`10 PRINT "HI"`, "HI\n"},
		{`10 PRINT 1`, "         1\n"},
		{`10 PRINT 1;2`, "         12\n"},
		{`10 PRINT ;"a";"b"`, "ab\n"},
		{`10 PRINT ;"a","b"`, "a         b\n"},
		{`10 PRINT ;"a"'"b"`, "a\nb\n"},
		{`10 PRINT ;~255`, "FF\n"},
		{`10 PRINT ;10/4`, "2.5\n"},
		{`10 PRINT ;7DIV2;" ";7MOD2`, "3 1\n"},
		{`10 PRINT ;"x";`, "x"},
		{`10 PRINT SPC(3);"x"`, "   x\n"},
		{`10 PRINT TAB(5);"x"`, "     x\n"},
	}
	for _, tt := range tests {
		out, err := runProg(t, []string{tt.src})
		assert.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, out, tt.src)
	}
}

func TestFormatWord(t *testing.T) {
	out, err := runProg(t, []string{
		`10 @%=&0002020A`,
		`20 PRINT ;2.5`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "2.50\n", out)
}

func TestAssignKinds(t *testing.T) {
	out, err := runProg(t, []string{
		`10 A%=300: B&=300: C%%=&100000000: D=1.5: E$="hi"`,
		`20 PRINT ;A%;" ";B&;" ";C%%;" ";D;" ";E$`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "300 44 4294967296 1.5 hi\n", out)
}

func TestCompoundAssign(t *testing.T) {
	out, err := runProg(t, []string{
		`10 N%=10: N%+=5: N%-=3`,
		`20 S$="ab": S$+="cd"`,
		`30 PRINT ;N%;" ";S$`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "12 abcd\n", out)
}

func TestForNext(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=1 TO 3`,
		`20 PRINT ;I%;" ";`,
		`30 NEXT`,
		`40 FOR F=1 TO 2 STEP 0.5: PRINT ;F;" ";: NEXT F`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "1 2 3 1 1.5 2 ", out)
}

func TestNextClosesInnerLoops(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=1 TO 2`,
		`20 FOR J%=1 TO 9`,
		`30 NEXT I%`,
		`40 PRINT ;I%`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestForRunsBodyOnce(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=5 TO 1`,
		`20 PRINT ;"ran"`,
		`30 NEXT`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "ran\n", out)
}

func TestWhileRepeat(t *testing.T) {
	out, err := runProg(t, []string{
		`10 I%=0`,
		`20 WHILE I%<3`,
		`30 I%+=1: PRINT ;I%;`,
		`40 ENDWHILE`,
		`50 REPEAT`,
		`60 I%-=1`,
		`70 UNTIL I%=0`,
		`80 PRINT ;" ";I%`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "123 0\n", out)
}

func TestWhileFalseSkipsBody(t *testing.T) {
	out, err := runProg(t, []string{
		`10 WHILE FALSE`,
		`20 PRINT ;"no"`,
		`30 ENDWHILE`,
		`40 PRINT ;"yes"`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "yes\n", out)
}

func TestExitFor(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=1 TO 10`,
		`20 IF I%=3 THEN EXIT FOR`,
		`30 NEXT`,
		`40 PRINT ;I%`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestSingleLineIf(t *testing.T) {
	tests := []struct {
		x    string
		want string
	}{
		{`10 X=5`, "big\n"},
		{`10 X=2`, "small\n"},
	}
	for _, tt := range tests {
		out, err := runProg(t, []string{
			tt.x,
			`20 IF X>3 THEN PRINT ;"big" ELSE PRINT ;"small"`,
		})
		assert.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestBlockIf(t *testing.T) {
	tests := []struct {
		x    string
		want string
	}{
		{`10 X%=2`, "two\ndone\n"},
		{`10 X%=7`, "other\ndone\n"},
	}
	for _, tt := range tests {
		out, err := runProg(t, []string{
			tt.x,
			`20 IF X%=2 THEN`,
			`30 PRINT ;"two"`,
			`40 ELSE`,
			`50 PRINT ;"other"`,
			`60 ENDIF`,
			`70 PRINT ;"done"`,
		})
		assert.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestCaseOf(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=1 TO 4`,
		`20 CASE I% OF`,
		`30 WHEN 1,2: PRINT ;"low"`,
		`40 WHEN 3: PRINT ;"three"`,
		`50 OTHERWISE PRINT ;"high"`,
		`60 ENDCASE`,
		`70 NEXT`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "low\nlow\nthree\nhigh\n", out)
}

func TestCaseStrings(t *testing.T) {
	out, err := runProg(t, []string{
		`10 W$="mid"`,
		`20 CASE W$ OF`,
		`30 WHEN "low": PRINT ;1`,
		`40 WHEN "mid": PRINT ;2`,
		`50 ENDCASE`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestGosubReturn(t *testing.T) {
	out, err := runProg(t, []string{
		`10 GOSUB 100`,
		`20 PRINT ;"back"`,
		`30 END`,
		`100 PRINT ;"sub"`,
		`110 RETURN`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "sub\nback\n", out)
}

func TestOnGosub(t *testing.T) {
	out, err := runProg(t, []string{
		`10 FOR I%=1 TO 3`,
		`20 ON I% GOSUB 100,200 ELSE PRINT ;"none"`,
		`30 NEXT`,
		`40 END`,
		`100 PRINT ;"one": RETURN`,
		`200 PRINT ;"two": RETURN`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "one\ntwo\nnone\n", out)
}

func TestProcAndFn(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PROCgreet("World")`,
		`20 PRINT ;FNdouble(21)`,
		`30 END`,
		`40 DEF PROCgreet(n$)`,
		`50 PRINT ;"Hello ";n$`,
		`60 ENDPROC`,
		`70 DEF FNdouble(x)=x*2`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "Hello World\n42\n", out)
}

func TestFnRecursion(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PRINT ;FNfact(5)`,
		`20 END`,
		`30 DEF FNfact(n)`,
		`40 IF n<=1 THEN =1`,
		`50 =n*FNfact(n-1)`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "120\n", out)
}

func TestFnStringResult(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PRINT ;FNjoin("a","b")`,
		`20 END`,
		`30 DEF FNjoin(x$,y$)=x$+"-"+y$`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "a-b\n", out)
}

func TestLocalShadowing(t *testing.T) {
	out, err := runProg(t, []string{
		`10 X=1`,
		`20 PROCt`,
		`30 PRINT ;X`,
		`40 END`,
		`50 DEF PROCt`,
		`60 LOCAL X`,
		`70 X=99`,
		`80 ENDPROC`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestParamsRestoredAfterCall(t *testing.T) {
	out, err := runProg(t, []string{
		`10 n=7`,
		`20 PRINT ;FNsq(3);" ";n`,
		`30 END`,
		`40 DEF FNsq(n)=n*n`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "9 7\n", out)
}

func TestDefSkippedInFlow(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PRINT ;"top"`,
		`20 DEF PROCnope`,
		`30 PRINT ;"never"`,
		`40 ENDPROC`,
		`50 PRINT ;"bottom"`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "top\nbottom\n", out)
}

func TestDataReadRestore(t *testing.T) {
	out, err := runProg(t, []string{
		`10 READ A$,B%,C`,
		`20 PRINT ;A$;"/";B%;"/";C`,
		`30 RESTORE 60`,
		`40 READ D$`,
		`50 PRINT ;D$`,
		`55 END`,
		`60 DATA "hello, world",42,2.5`,
		`70 DATA second`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "hello, world/42/2.5\nhello, world\n", out)
}

func TestOutOfData(t *testing.T) {
	out, err := runProg(t, []string{
		`10 READ A%`,
	})
	assert.Error(t, err)
	assert.Contains(t, out, "Out of DATA at line 10")
}

func TestOnErrorHandler(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR PRINT ;"caught ";ERR;" ";REPORT$: END`,
		`20 PRINT ;1/0`,
		`30 PRINT ;"unreached"`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "caught 11 Division by zero\n", out)
}

func TestErrorStatement(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR PRINT ;ERR;" ";REPORT$: END`,
		`20 ERROR 99,"custom"`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "99 custom\n", out)
}

func TestErlReportsLine(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR PRINT ;ERL: END`,
		`20 X%=1`,
		`30 Y%=X% DIV 0`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "30\n", out)
}

func TestUnhandledErrorReports(t *testing.T) {
	out, err := runProg(t, []string{
		`10 X%=1 DIV 0`,
	})
	assert.Error(t, err)
	assert.Contains(t, out, "Division by zero at line 10")
}

func TestEscapePolling(t *testing.T) {
	ex, mt := testExec()
	loadProg(t, ex, []string{`10 GOTO 10`})
	*mt.BreakAt = 25
	err := ex.Run()
	assert.Error(t, err)
	assert.Contains(t, mt.Out.String(), "Escape at line 10")
}

func TestDimByteBlockIndirection(t *testing.T) {
	out, err := runProg(t, []string{
		`10 DIM B 16`,
		`20 ?B=65`,
		`30 B?1=66`,
		`40 PRINT ;?B;B?1`,
		`50 !(B+4)=&12345678`,
		`60 PRINT ;~!(B+4)`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "6566\n12345678\n", out)
}

func TestStringIndirection(t *testing.T) {
	out, err := runProg(t, []string{
		`10 DIM B 20`,
		`20 $B="XYZ"`,
		`30 PRINT ;$B`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "XYZ\n", out)
}

func TestArrays(t *testing.T) {
	out, err := runProg(t, []string{
		`10 DIM A(4),W$(2)`,
		`20 FOR I%=0 TO 4: A(I%)=I%*I%: NEXT`,
		`30 PRINT ;A(3)`,
		`40 W$(1)="str"`,
		`50 PRINT ;W$(1)`,
		`60 A()=A()+1`,
		`70 PRINT ;A(3)`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "9\nstr\n10\n", out)
}

func TestArrayCopyAndSum(t *testing.T) {
	out, err := runProg(t, []string{
		`10 DIM A%(3),B%(3)`,
		`20 FOR I%=0 TO 3: A%(I%)=I%: NEXT`,
		`30 B%()=A%()`,
		`40 B%()=B%()*2`,
		`50 PRINT ;SUM(B%())`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "12\n", out)
}

func TestSubscriptRange(t *testing.T) {
	out, err := runProg(t, []string{
		`10 DIM A%(3)`,
		`20 A%(9)=1`,
	})
	assert.Error(t, err)
	assert.Contains(t, out, "Subscript out of range at line 20")
}

func TestSwap(t *testing.T) {
	out, err := runProg(t, []string{
		`10 A$="x": B$="y"`,
		`20 SWAP A$,B$`,
		`30 PRINT ;A$;B$`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "yx\n", out)
}

func TestStringHeapGrowth(t *testing.T) {
	out, err := runProg(t, []string{
		`10 S$=""`,
		`20 FOR I%=1 TO 50: S$=S$+"ab": NEXT`,
		`30 PRINT ;LEN(S$);" ";LEFT$(S$,4)`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "100 abab\n", out)
}

func TestClearZeroesVariables(t *testing.T) {
	out, err := runProg(t, []string{
		`10 XY=5: X%=70`,
		`20 CLEAR`,
		`30 PRINT ;XY;" ";X%`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "0 70\n", out)
}

func TestStopReports(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PRINT ;"pre"`,
		`20 STOP`,
		`30 PRINT ;"post"`,
	})
	assert.NoError(t, err)
	assert.Contains(t, out, "pre\n")
	assert.Contains(t, out, "STOP at line 20")
	assert.NotContains(t, out, "post")
}

func TestInput(t *testing.T) {
	ex, mt := testExec()
	loadProg(t, ex, []string{
		`10 INPUT "Name";N$`,
		`20 INPUT A%,B%`,
		`30 PRINT ;"Hi ";N$;" ";A%+B%`,
	})
	*mt.Lines = []string{"Ada", "3,4"}
	err := ex.Run()
	assert.NoError(t, err)
	out := mt.Out.String()
	assert.Contains(t, out, "Name?")
	assert.Contains(t, out, "Hi Ada 7\n")
}

func TestImmediateMode(t *testing.T) {
	ex, mt := testExec()
	assert.NoError(t, runLine(t, ex, `X=5`))
	assert.NoError(t, runLine(t, ex, `PRINT ;X*2`))
	assert.Equal(t, "10\n", mt.Out.String())
}

func TestImmediateRunsProgram(t *testing.T) {
	ex, mt := testExec()
	loadProg(t, ex, []string{`10 PRINT ;"ran"`})
	assert.NoError(t, runLine(t, ex, `RUN`))
	assert.Equal(t, "ran\n", mt.Out.String())
}

func TestGotoUndefinedLine(t *testing.T) {
	out, err := runProg(t, []string{
		`10 GOTO 999`,
	})
	assert.Error(t, err)
	assert.Contains(t, out, "Undefined line number at line 10")
}

func TestResolutionSurvivesLoop(t *testing.T) {
	// the GOTO target resolves on the first pass and the loop still
	// terminates, so the cached address form must behave identically
	out, err := runProg(t, []string{
		`10 N%=0`,
		`20 N%+=1`,
		`30 IF N%<5 THEN GOTO 20`,
		`40 PRINT ;N%`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "5\n", out)
}

func TestListDetokenises(t *testing.T) {
	ex, mt := testExec()
	loadProg(t, ex, []string{
		`10 PRINT "A"`,
		`20 GOTO 10`,
	})
	assert.NoError(t, runLine(t, ex, `LIST`))
	assert.Contains(t, mt.Out.String(), `10 PRINT "A"`)
	assert.Contains(t, mt.Out.String(), `20 GOTO 10`)
}

func TestOnErrorLocalRestored(t *testing.T) {
	out, err := runProg(t, []string{
		`10 PROCsafe`,
		`20 PRINT ;1/0`,
		`30 END`,
		`40 DEF PROCsafe`,
		`50 ON ERROR LOCAL PRINT ;"inner": ENDPROC`,
		`60 ENDPROC`,
	})
	assert.Error(t, err)
	// the local handler dies with its PROC, the later error reports
	assert.Contains(t, out, "Division by zero at line 20")
	assert.NotContains(t, out, "inner")
}

func TestErrorStatementFatalExt(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR PRINT ;"caught": END`,
		`20 ERROR EXT 1,"fatal"`,
	})
	assert.NoError(t, err)
	assert.Contains(t, out, "fatal at line 20")
	assert.NotContains(t, out, "caught")
}

func TestBreaksOutOfFnOnError(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR PRINT ;"handled": END`,
		`20 PRINT ;FNboom(1)`,
		`30 END`,
		`40 DEF FNboom(x)`,
		`50 =x DIV 0`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "handled\n", out)
}

func TestWhileNesting(t *testing.T) {
	out, err := runProg(t, []string{
		`10 I%=0`,
		`20 WHILE I%<2`,
		`30 J%=0`,
		`40 WHILE J%<2`,
		`50 PRINT ;I%;J%;" ";`,
		`60 J%+=1`,
		`70 ENDWHILE`,
		`80 I%+=1`,
		`90 ENDWHILE`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "00 01 10 11 ", out)
}

func TestTimePseudoVariable(t *testing.T) {
	ex, mt := testExec()
	ex.env.SetMos(&mocks.MockMOS{})
	loadProg(t, ex, []string{
		`10 TIME=500`,
		`20 PRINT ;TIME`,
	})
	assert.NoError(t, ex.Run())
	assert.Equal(t, "500\n", mt.Out.String())
}

func TestBputAndChannelFuncs(t *testing.T) {
	ex, mt := testExec()
	fs := mocks.NewMockFS()
	fs.Files["out"] = []byte{}
	ex.env.SetFS(fs)
	loadProg(t, ex, []string{
		`10 C%=OPENOUT("out")`,
		`20 BPUT#C%,65`,
		`30 BPUT#C%,"BC"`,
		`40 CLOSE#C%`,
		`50 PRINT ;"ok"`,
	})
	assert.NoError(t, ex.Run())
	assert.Equal(t, "ok\n", mt.Out.String())
	assert.Equal(t, "ABC\n", string(fs.Files["out"]))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ex, mt := testExec()
	ex.env.Filepath = t.TempDir()
	loadProg(t, ex, []string{
		`10 PRINT ;"kept"`,
	})
	require.NoError(t, runLine(t, ex, `SAVE "prog.bas"`))
	require.NoError(t, runLine(t, ex, `NEW`))
	require.NoError(t, runLine(t, ex, `LOAD "prog.bas"`))
	require.NoError(t, runLine(t, ex, `RUN`))
	assert.Equal(t, "kept\n", mt.Out.String())
}

func TestLoadOverHTTP(t *testing.T) {
	ex, mt := testExec()
	ex.env.SetClient(&mocks.MockClient{Contents: "10 PRINT ;\"net\"\n"})
	require.NoError(t, runLine(t, ex, `LOAD "http://lib.example/hello.bas"`))
	require.NoError(t, runLine(t, ex, `RUN`))
	assert.Equal(t, "net\n", mt.Out.String())
}

func TestLoadMissingFile(t *testing.T) {
	ex, _ := testExec()
	ex.env.Filepath = t.TempDir()
	err := runLine(t, ex, `LOAD "nosuch.bas"`)
	assert.Error(t, err)
}

func TestErrorKeepsErlAcrossReport(t *testing.T) {
	out, err := runProg(t, []string{
		`10 ON ERROR GOTO 100`,
		`20 ERROR 7,"boom"`,
		`30 END`,
		`100 REPORT`,
		`110 PRINT ;" ";ERL`,
	})
	assert.NoError(t, err)
	assert.Contains(t, out, "boom 20")
}
