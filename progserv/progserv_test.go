package progserv

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLibrary(t *testing.T) *mux.Router {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.bas"), []byte("10 PRINT \"HI\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "menu"), []byte("10 END\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".secret"), []byte("nope"), 0644))

	rtr := mux.NewRouter()
	Routes(rtr, dir)
	return rtr
}

func get(t *testing.T, rtr *mux.Router, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	rtr.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServesProgram(t *testing.T) {
	rtr := testLibrary(t)

	tests := []struct {
		path string
		code int
		body string
	}{
		{path: "/lib/hello.bas", code: 200, body: "10 PRINT \"HI\"\n"},
		{path: "/lib/menu", code: 200, body: "10 END\n"},
		{path: "/lib/nosuch.bas", code: 404},
		{path: "/lib/.secret", code: 404},
	}

	for _, tt := range tests {
		code, body := get(t, rtr, tt.path)
		assert.Equal(t, tt.code, code, tt.path)
		if tt.code == 200 {
			assert.Equal(t, tt.body, body, tt.path)
		}
	}
}

func TestDirectoryListing(t *testing.T) {
	rtr := testLibrary(t)

	code, body := get(t, rtr, "/lib/")
	assert.Equal(t, 200, code)
	assert.Equal(t, "hello.bas\nmenu\n", body)
}

func TestListingHidesDotFiles(t *testing.T) {
	rtr := testLibrary(t)

	_, body := get(t, rtr, "/lib")
	assert.NotContains(t, body, ".secret")
}
