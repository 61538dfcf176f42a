package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maxatome/go-testdeep/td"
	"github.com/sirupsen/logrus"

	"github.com/kirsrus/diskimage/pkg/disk"
	"github.com/kirsrus/diskimage/pkg/manifest"
)

func testTemplates(t *testing.T) Template {
	index, err := os.ReadFile(filepath.Join("..", "templates", "index.html"))
	td.Require(t).CmpNoError(err)
	tree, err := os.ReadFile(filepath.Join("..", "templates", "tree.html"))
	td.Require(t).CmpNoError(err)
	return Template{Index: string(index), Tree: string(tree)}
}

func testSource() *source {
	date := time.Date(1991, time.May, 6, 7, 8, 10, 0, time.UTC)
	cp := manifest.NewFile("DOCS/\x80.TXT", "\x80.TXT", 0, date, []byte("accent"))
	cp.NameEncoding = manifest.EncodingCP437

	lost := manifest.NewFile("LOST.TXT", "LOST.TXT", 0, date, nil)
	lost.Size = 10
	lost.Content = nil

	return &source{
		input: "TEST.ZIP",
		name:  "TEST",
		entries: []manifest.Entry{
			manifest.NewVolume("TEST.ZIP", "DISK", date),
			manifest.NewFile("A.TXT", "A.TXT", 0, date, []byte("hello")),
			manifest.NewDir("DOCS", "DOCS", date, []manifest.Entry{cp}),
			lost,
		},
	}
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func newTestRouter(t *testing.T, staticDir string) http.Handler {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.Out = io.Discard

	router, err := newRouter(testSource(), testTemplates(t), staticDir, log)
	td.Require(t).CmpNoError(err)
	return router
}

func TestRouter_Index(t *testing.T) {
	w := get(t, newTestRouter(t, ""), "/")

	td.Cmp(t, w.Code, http.StatusOK)
	td.Cmp(t, w.Body.String(), td.All(
		td.Contains("<h1>TEST.ZIP</h1>"),
		td.Contains("<td>DISK</td>"),
		td.Contains(`href="/files/"`),
		td.Not(td.Contains(`href="/static/"`)),
	))
	td.Cmp(t, w.Header().Get("Access-Control-Allow-Origin"), "*")
}

func TestRouter_Manifest(t *testing.T) {
	w := get(t, newTestRouter(t, ""), "/manifest.json")
	td.Require(t).Cmp(w.Code, http.StatusOK)

	d, err := disk.ReadJSON(w.Body)
	td.Require(t).CmpNoError(err)
	td.Cmp(t, d.Label, "DISK")
	td.Cmp(t, d.Files, 3)
	td.Cmp(t, d.Dirs, 1)
	td.Cmp(t, d.TotalSize, int64(21))
	td.Cmp(t, d.Entries, td.Len(4))
}

func TestRouter_Files(t *testing.T) {
	router := newTestRouter(t, "")

	t.Run("root", func(t *testing.T) {
		w := get(t, router, "/files/")
		td.Cmp(t, w.Code, http.StatusOK)
		td.Cmp(t, w.Body.String(), td.All(
			td.Contains(`<a href="DOCS/">DOCS/</a>`),
			td.Contains(`<a href="A.TXT">A.TXT</a>`),
			td.Contains(`<a href="/">..</a>`),
			td.Not(td.Contains("DISK")),
		))
	})

	t.Run("subdir", func(t *testing.T) {
		w := get(t, router, "/files/DOCS/")
		td.Cmp(t, w.Code, http.StatusOK)
		td.Cmp(t, w.Body.String(), td.All(
			td.Contains("Ç.TXT"),
			td.Contains(`<a href="/files/">..</a>`),
		))
	})

	t.Run("download", func(t *testing.T) {
		w := get(t, router, "/files/A.TXT")
		td.Cmp(t, w.Code, http.StatusOK)
		td.Cmp(t, w.Body.String(), "hello")
		td.Cmp(t, w.Header().Get("Content-Disposition"), `attachment; filename="A.TXT"`)
		td.Cmp(t, w.Header().Get("Content-Type"), "application/octet-stream")
	})

	t.Run("cp437 name", func(t *testing.T) {
		w := get(t, router, "/files/DOCS/%80.TXT")
		td.Cmp(t, w.Code, http.StatusOK)
		td.Cmp(t, w.Body.String(), "accent")
	})

	t.Run("missing", func(t *testing.T) {
		td.Cmp(t, get(t, router, "/files/NOPE.TXT").Code, http.StatusNotFound)
		td.Cmp(t, get(t, router, "/files/A.TXT/X").Code, http.StatusNotFound)
	})

	t.Run("no contents", func(t *testing.T) {
		w := get(t, router, "/files/LOST.TXT")
		td.Cmp(t, w.Code, http.StatusNotFound)
		td.Cmp(t, w.Body.String(), td.Contains("has no contents"))
	})
}

func TestRouter_Static(t *testing.T) {
	dir := t.TempDir()
	td.Require(t).CmpNoError(os.WriteFile(filepath.Join(dir, "X.TXT"), []byte("extracted"), 0o644))

	router := newTestRouter(t, dir)

	w := get(t, router, "/static/X.TXT")
	td.Cmp(t, w.Code, http.StatusOK)
	td.Cmp(t, w.Body.String(), "extracted")

	td.Cmp(t, get(t, router, "/").Body.String(), td.Contains(`href="/static/"`))
}

func TestNewRouter_BadTemplate(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard

	_, err := newRouter(testSource(), Template{Index: "{{.Title", Tree: ""}, "", log)
	td.CmpError(t, err)
}

func TestRelativize(t *testing.T) {
	date := time.Date(1991, time.May, 6, 7, 8, 10, 0, time.UTC)
	entries := []manifest.Entry{
		manifest.NewFile("/src/A.TXT", "A.TXT", 0, date, nil),
		manifest.NewDir("/src/DOCS", "DOCS", date, []manifest.Entry{
			manifest.NewFile("/src/DOCS/B.TXT", "B.TXT", 0, date, nil),
		}),
		manifest.NewFile("/other/C.TXT", "C.TXT", 0, date, nil),
	}

	got := relativize(entries)
	td.Cmp(t, got, td.Smuggle(func(es []manifest.Entry) []string {
		paths := make([]string, 0)
		_ = manifest.Walk(es, func(e *manifest.Entry, _ int) error {
			paths = append(paths, e.Path)
			return nil
		})
		return paths
	}, []string{"A.TXT", "DOCS", "DOCS/B.TXT", "C.TXT"}))
}

func TestDiskName(t *testing.T) {
	td.Cmp(t, diskName(filepath.Join("games", "PAC.ZIP")), "PAC")
	td.Cmp(t, diskName("README"), "README")
	td.Cmp(t, displayName(manifest.Entry{Name: "\x80", NameEncoding: manifest.EncodingCP437}), "Ç")
	td.Cmp(t, displayName(manifest.Entry{Name: "Ç"}), "Ç")
}
