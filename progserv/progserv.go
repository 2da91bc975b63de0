// Package progserv serves a program library directory over HTTP so a
// running interpreter can LOAD "http://host:port/lib/name.bas". Dot
// files never leave the library.
package progserv

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gorilla/mux"
)

type library struct {
	src http.FileSystem
}

// Routes builds the mux routes for one library directory. The mux has
// no wildcard routes, so the name shapes are mapped independently:
//
//	http://hostname:port/lib
//	http://hostname:port/lib/
//	http://hostname:port/lib/program
//	http://hostname:port/lib/program.ext
func Routes(rtr *mux.Router, dir string) {
	lib := &library{src: http.Dir(dir)}
	lib.wrap(rtr, "/lib")
	lib.wrap(rtr, "/lib/")
	lib.wrap(rtr, "/lib/{file}")
	lib.wrap(rtr, "/lib/{file}.{ext}")
}

// Serve blocks on ListenAndServe for a library directory.
func Serve(addr, dir string) error {
	rtr := mux.NewRouter()
	Routes(rtr, dir)
	return http.ListenAndServe(addr, rtr)
}

func (lib *library) wrap(rtr *mux.Router, path string) {
	rtr.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		vs := mux.Vars(r)
		file := vs["file"]
		if ext := vs["ext"]; len(ext) > 0 {
			file = file + "." + ext
		}
		lib.serveFile(rw, file)
	}).Name(path)
}

func (lib *library) serveFile(w http.ResponseWriter, fname string) {
	if len(fname) == 0 {
		fname = "/"
	}

	hfile, err := lib.open(fname)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer hfile.Close()

	st, err := hfile.Stat()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if st.IsDir() {
		lib.sendDirectory(hfile, w)
		return
	}

	buf := make([]byte, int(st.Size()))
	if _, err = hfile.Read(buf); err != nil && st.Size() > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=ASCII")
	w.Write(buf)
}

// sendDirectory lists the library, one name per line, the shape the
// *CAT listing uses.
func (lib *library) sendDirectory(hfile http.File, w http.ResponseWriter) {
	files, err := hfile.Readdir(-1)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var names []string
	for _, finfo := range files {
		if containsDotFile(finfo.Name()) {
			continue
		}
		names = append(names, finfo.Name())
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain; charset=ASCII")
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// open hides dot files the same way on a file as on a listing.
func (lib *library) open(name string) (http.File, error) {
	if containsDotFile(name) {
		return nil, os.ErrPermission
	}

	file, err := lib.src.Open(name)
	if err != nil {
		return nil, err
	}
	return dotFileHidingFile{file}, nil
}

// containsDotFile reports whether name contains a path element starting
// with a period. The name is delimited by forward slashes, as
// guaranteed by the http.FileSystem interface.
func containsDotFile(name string) bool {
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// dotFileHidingFile wraps Readdir so dot files and directories never
// show up in a listing.
type dotFileHidingFile struct {
	http.File
}

func (f dotFileHidingFile) Readdir(n int) (fis []os.FileInfo, err error) {
	files, err := f.File.Readdir(n)
	for _, file := range files {
		if !strings.HasPrefix(file.Name(), ".") {
			fis = append(fis, file)
		}
	}
	return
}
