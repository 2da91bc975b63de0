// Package localfiles is the host disk edition of the Filesystem
// interface. Each channel is an open file; names resolve under a
// root directory unless they are absolute.
package localfiles

import (
	"io"
	"os"
	"path/filepath"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
)

// Files hands out channel numbers for open host files. Channel 0 is
// never a valid handle; OPENIN answers it for a missing file.
type Files struct {
	root string
	open map[int]*os.File
	next int
}

func New(root string) *Files {
	return &Files{root: root, open: make(map[int]*os.File)}
}

func (f *Files) path(name string) string {
	if f.root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(f.root, name)
}

func (f *Files) add(file *os.File) int {
	f.next++
	f.open[f.next] = file
	return f.next
}

func (f *Files) get(h int) (*os.File, error) {
	file, ok := f.open[h]
	if !ok {
		return nil, berrors.New(berrors.BadChannel)
	}
	return file, nil
}

// OpenIn opens for reading. A missing file answers channel 0, the
// caller decides whether that is an error.
func (f *Files) OpenIn(name string) (int, error) {
	file, err := os.Open(f.path(name))
	if err != nil {
		return 0, nil
	}
	return f.add(file), nil
}

func (f *Files) OpenOut(name string) (int, error) {
	file, err := os.Create(f.path(name))
	if err != nil {
		return 0, berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return f.add(file), nil
}

// OpenUp opens an existing file for update, channel 0 when missing.
func (f *Files) OpenUp(name string) (int, error) {
	file, err := os.OpenFile(f.path(name), os.O_RDWR, 0644)
	if err != nil {
		return 0, nil
	}
	return f.add(file), nil
}

func (f *Files) Close(h int) error {
	file, err := f.get(h)
	if err != nil {
		return err
	}
	delete(f.open, h)
	if err := file.Close(); err != nil {
		return berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return nil
}

func (f *Files) CloseAll() {
	for h, file := range f.open {
		file.Close()
		delete(f.open, h)
	}
}

func (f *Files) Bget(h int) (byte, error) {
	file, err := f.get(h)
	if err != nil {
		return 0, err
	}
	var b [1]byte
	if n, _ := file.Read(b[:]); n != 1 {
		return 0, berrors.New(berrors.Range)
	}
	return b[0], nil
}

func (f *Files) Bput(h int, b byte) error {
	file, err := f.get(h)
	if err != nil {
		return err
	}
	if _, err := file.Write([]byte{b}); err != nil {
		return berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return nil
}

func (f *Files) Ptr(h int) (int64, error) {
	file, err := f.get(h)
	if err != nil {
		return 0, err
	}
	off, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return off, nil
}

func (f *Files) SetPtr(h int, off int64) error {
	file, err := f.get(h)
	if err != nil {
		return err
	}
	if off < 0 {
		return berrors.New(berrors.Range)
	}
	if _, err := file.Seek(off, io.SeekStart); err != nil {
		return berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return nil
}

func (f *Files) Ext(h int) (int64, error) {
	file, err := f.get(h)
	if err != nil {
		return 0, err
	}
	st, err := file.Stat()
	if err != nil {
		return 0, berrors.NewMsg(berrors.CmdFail, err.Error())
	}
	return st.Size(), nil
}

func (f *Files) Eof(h int) (bool, error) {
	ptr, err := f.Ptr(h)
	if err != nil {
		return false, err
	}
	ext, err := f.Ext(h)
	if err != nil {
		return false, err
	}
	return ptr >= ext, nil
}
