package object

import (
	"io"
	"os"
	"path/filepath"

	"github.com/stardot/MatrixBrandy-sub002/berrors"
)

// HostFiles is the Filesystem the real interpreter runs with, a thin
// wrap of os.File keyed by BASIC channel numbers.
type HostFiles struct {
	files map[int]*os.File
	next  int
	dir   string // resolved against FILEPATH$
}

func NewHostFiles(dir string) *HostFiles {
	return &HostFiles{files: make(map[int]*os.File), next: 1, dir: dir}
}

func (hf *HostFiles) path(name string) string {
	if filepath.IsAbs(name) || hf.dir == "" {
		return name
	}
	return filepath.Join(hf.dir, name)
}

func (hf *HostFiles) add(f *os.File) int {
	h := hf.next
	hf.next++
	hf.files[h] = f
	return h
}

func (hf *HostFiles) file(h int) (*os.File, error) {
	f, ok := hf.files[h]
	if !ok {
		return nil, berrors.New(berrors.BadChannel)
	}
	return f, nil
}

// OpenIn opens for reading; a missing file reports channel 0 the way
// OPENIN does, not an error.
func (hf *HostFiles) OpenIn(name string) (int, error) {
	f, err := os.Open(hf.path(name))
	if err != nil {
		return 0, nil
	}
	return hf.add(f), nil
}

func (hf *HostFiles) OpenOut(name string) (int, error) {
	f, err := os.Create(hf.path(name))
	if err != nil {
		return 0, berrors.New(berrors.CmdFail)
	}
	return hf.add(f), nil
}

func (hf *HostFiles) OpenUp(name string) (int, error) {
	f, err := os.OpenFile(hf.path(name), os.O_RDWR, 0644)
	if err != nil {
		return 0, nil
	}
	return hf.add(f), nil
}

func (hf *HostFiles) Close(h int) error {
	f, err := hf.file(h)
	if err != nil {
		return err
	}
	delete(hf.files, h)
	f.Close()
	return nil
}

// CloseAll closes all open files
func (hf *HostFiles) CloseAll() {
	for h, f := range hf.files {
		f.Close()
		delete(hf.files, h)
	}
}

func (hf *HostFiles) Bget(h int) (byte, error) {
	f, err := hf.file(h)
	if err != nil {
		return 0, err
	}
	var b [1]byte
	if _, err := io.ReadFull(f, b[:]); err != nil {
		return 0, berrors.New(berrors.CmdFail)
	}
	return b[0], nil
}

func (hf *HostFiles) Bput(h int, b byte) error {
	f, err := hf.file(h)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte{b}); err != nil {
		return berrors.New(berrors.CmdFail)
	}
	return nil
}

func (hf *HostFiles) Ptr(h int) (int64, error) {
	f, err := hf.file(h)
	if err != nil {
		return 0, err
	}
	return f.Seek(0, io.SeekCurrent)
}

func (hf *HostFiles) SetPtr(h int, off int64) error {
	f, err := hf.file(h)
	if err != nil {
		return err
	}
	_, err = f.Seek(off, io.SeekStart)
	return err
}

func (hf *HostFiles) Ext(h int) (int64, error) {
	f, err := hf.file(h)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, berrors.New(berrors.CmdFail)
	}
	return fi.Size(), nil
}

func (hf *HostFiles) Eof(h int) (bool, error) {
	pos, err := hf.Ptr(h)
	if err != nil {
		return false, err
	}
	end, err := hf.Ext(h)
	if err != nil {
		return false, err
	}
	return pos >= end, nil
}
