package mocks

import (
	"github.com/stardot/MatrixBrandy-sub002/berrors"
)

type mockFile struct {
	name  string
	data  []byte
	ptr   int64
	write bool
}

// MockFS is an in-memory filesystem for the file channel statements.
type MockFS struct {
	Files map[string][]byte
	open  map[int]*mockFile
	next  int
}

func NewMockFS() *MockFS {
	return &MockFS{
		Files: make(map[string][]byte),
		open:  make(map[int]*mockFile),
	}
}

// OpenIn answers channel 0 for a missing file rather than an error.
func (m *MockFS) OpenIn(name string) (int, error) {
	data, ok := m.Files[name]
	if !ok {
		return 0, nil
	}
	return m.add(&mockFile{name: name, data: append([]byte{}, data...)}), nil
}

func (m *MockFS) OpenOut(name string) (int, error) {
	return m.add(&mockFile{name: name, write: true}), nil
}

func (m *MockFS) OpenUp(name string) (int, error) {
	data, ok := m.Files[name]
	if !ok {
		return 0, nil
	}
	return m.add(&mockFile{name: name, data: append([]byte{}, data...), write: true}), nil
}

func (m *MockFS) add(f *mockFile) int {
	m.next++
	m.open[m.next] = f
	return m.next
}

func (m *MockFS) get(h int) (*mockFile, error) {
	f, ok := m.open[h]
	if !ok {
		return nil, berrors.New(berrors.BadChannel)
	}
	return f, nil
}

func (m *MockFS) Close(h int) error {
	f, err := m.get(h)
	if err != nil {
		return err
	}
	if f.write {
		m.Files[f.name] = f.data
	}
	delete(m.open, h)
	return nil
}

func (m *MockFS) CloseAll() {
	for h := range m.open {
		m.Close(h)
	}
}

func (m *MockFS) Bget(h int) (byte, error) {
	f, err := m.get(h)
	if err != nil {
		return 0, err
	}
	if f.ptr >= int64(len(f.data)) {
		return 0, berrors.New(berrors.Range)
	}
	b := f.data[f.ptr]
	f.ptr++
	return b, nil
}

func (m *MockFS) Bput(h int, b byte) error {
	f, err := m.get(h)
	if err != nil {
		return err
	}
	for int64(len(f.data)) < f.ptr {
		f.data = append(f.data, 0)
	}
	if f.ptr == int64(len(f.data)) {
		f.data = append(f.data, b)
	} else {
		f.data[f.ptr] = b
	}
	f.ptr++
	return nil
}

func (m *MockFS) Ptr(h int) (int64, error) {
	f, err := m.get(h)
	if err != nil {
		return 0, err
	}
	return f.ptr, nil
}

func (m *MockFS) SetPtr(h int, off int64) error {
	f, err := m.get(h)
	if err != nil {
		return err
	}
	if off < 0 {
		return berrors.New(berrors.Range)
	}
	f.ptr = off
	return nil
}

func (m *MockFS) Ext(h int) (int64, error) {
	f, err := m.get(h)
	if err != nil {
		return 0, err
	}
	return int64(len(f.data)), nil
}

func (m *MockFS) Eof(h int) (bool, error) {
	f, err := m.get(h)
	if err != nil {
		return false, err
	}
	return f.ptr >= int64(len(f.data)), nil
}
