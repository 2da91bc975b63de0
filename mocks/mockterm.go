// Package mocks supplies test doubles for the console, filesystem and
// MOS boundaries.
package mocks

import "strings"

// MockTerm captures console output and plays back canned input. The
// fields are pointers so the value can be copied into an interface and
// still observed by the test.
type MockTerm struct {
	Out     *strings.Builder // everything printed
	Keys    *string          // pending ReadKey bytes
	Lines   *[]string        // canned ReadLine responses
	Row     *int
	Col     *int
	SawCls  *bool
	SawBeep *bool
	BreakAt *int // BreakCheck answers true on this poll, 0 = never
	Polls   *int
}

func NewMockTerm() *MockTerm {
	return &MockTerm{
		Out:     &strings.Builder{},
		Keys:    new(string),
		Lines:   &[]string{},
		Row:     new(int),
		Col:     new(int),
		SawCls:  new(bool),
		SawBeep: new(bool),
		BreakAt: new(int),
		Polls:   new(int),
	}
}

func (mt *MockTerm) Cls() {
	*mt.SawCls = true
	mt.Out.Reset()
	*mt.Row, *mt.Col = 0, 0
}

func (mt *MockTerm) Print(msg string) {
	mt.Out.WriteString(msg)
	*mt.Col += len(msg)
}

func (mt *MockTerm) Println(msg string) {
	mt.Out.WriteString(msg)
	mt.Out.WriteByte('\n')
	*mt.Row++
	*mt.Col = 0
}

func (mt *MockTerm) Flush() {}

func (mt *MockTerm) Locate(row, col int) {
	*mt.Row, *mt.Col = row, col
}

func (mt *MockTerm) GetCursor() (int, int) {
	return *mt.Row, *mt.Col
}

func (mt *MockTerm) ReadKey() (byte, bool) {
	if len(*mt.Keys) == 0 {
		return 0, false
	}
	b := (*mt.Keys)[0]
	*mt.Keys = (*mt.Keys)[1:]
	return b, true
}

func (mt *MockTerm) ReadLine(prefill string, max int) (string, bool) {
	if len(*mt.Lines) == 0 {
		return "", false
	}
	s := (*mt.Lines)[0]
	*mt.Lines = (*mt.Lines)[1:]
	if max > 0 && len(s) > max {
		s = s[:max]
	}
	return s, true
}

func (mt *MockTerm) SoundBell() {
	*mt.SawBeep = true
}

// BreakCheck counts polls so a test can trip an escape at a chosen
// statement boundary.
func (mt *MockTerm) BreakCheck() bool {
	*mt.Polls++
	return *mt.BreakAt > 0 && *mt.Polls >= *mt.BreakAt
}

// FeedKeys queues bytes for ReadKey.
func (mt *MockTerm) FeedKeys(s string) {
	*mt.Keys += s
}

// FeedLine queues one ReadLine response.
func (mt *MockTerm) FeedLine(s string) {
	*mt.Lines = append(*mt.Lines, s)
}
