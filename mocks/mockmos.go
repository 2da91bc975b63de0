package mocks

import "github.com/stardot/MatrixBrandy-sub002/berrors"

// MockMOS stands in for the operating system surface. The clock only
// moves when the test moves it, or through WAIT.
type MockMOS struct {
	Clock    int64 // centiseconds
	ClockStr string
	Osclis   []string // every star command seen
	SysRet   int64
	SysErr   bool
	Waited   int
}

func (m *MockMOS) Oscli(cmd string) error {
	m.Osclis = append(m.Osclis, cmd)
	return nil
}

func (m *MockMOS) Sys(num int64, in [10]int64, out *[10]int64) (int64, error) {
	if m.SysErr {
		return 0, berrors.New(berrors.Unsupported)
	}
	*out = in
	return m.SysRet, nil
}

func (m *MockMOS) Time() int64 { return m.Clock }

func (m *MockMOS) SetTime(t int64) { m.Clock = t }

func (m *MockMOS) TimeDol() string { return m.ClockStr }

func (m *MockMOS) SetTimeDol(s string) error {
	m.ClockStr = s
	return nil
}

func (m *MockMOS) Wait(centiseconds int) {
	m.Waited += centiseconds
	m.Clock += int64(centiseconds)
}
