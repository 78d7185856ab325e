package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	rwatcher "github.com/radovskyb/watcher"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

const fixturePath = "../searchindex/testdata/quspin.js"

func smallIndex() *searchindex.Index {
	return &searchindex.Index{
		DocNames:  []string{"intro", "api"},
		Filenames: []string{"intro.rst", "api.rst"},
		Titles:    []string{"Intro", "API"},
		Terms: map[string]searchindex.PostingList{
			"spin": {{Doc: 0}, {Doc: 1}},
		},
		TitleTerms: map[string]searchindex.PostingList{
			"api": {{Doc: 1}},
		},
	}
}

func brokenIndex() *searchindex.Index {
	idx := smallIndex()
	idx.Terms["bad"] = searchindex.PostingList{{Doc: 7}}
	return idx
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func encode(t *testing.T, idx *searchindex.Index) []byte {
	t.Helper()
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"quspin", "QuSpin-2.1", "a", "docs_v1.0"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", ".hidden", "a/b", "a b", "x*"} {
		if err := ValidateName(name); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestPutGetRemove(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cat := New(m)

	var mu sync.Mutex
	var changes []string
	cat.OnChange(func(name string, removed bool) {
		mu.Lock()
		defer mu.Unlock()
		if removed {
			name = "-" + name
		}
		changes = append(changes, name)
	})

	entry, report, err := cat.Put("docs", smallIndex(), SourceUpload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !report.Valid || entry.Checksum == "" {
		t.Fatalf("unexpected entry %+v report %+v", entry, report)
	}
	gen := cat.Generation()

	got, err := cat.Get("docs")
	if err != nil || got != entry {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if v := testutil.ToFloat64(m.IndexesLoaded); v != 1 {
		t.Errorf("indexes_loaded = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.IndexDocuments.WithLabelValues("docs")); v != 2 {
		t.Errorf("index_documents = %v, want 2", v)
	}

	if _, _, err := cat.Put("other", smallIndex(), SourceFile); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"docs", "other"}, cat.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	if !cat.Remove("docs") || cat.Remove("docs") {
		t.Error("Remove should report true once")
	}
	if cat.Generation() <= gen {
		t.Error("generation did not advance")
	}
	if _, err := cat.Get("docs"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Get after Remove = %v", err)
	}
	if diff := cmp.Diff([]string{"docs", "other", "-docs"}, changes); diff != "" {
		t.Errorf("change hooks mismatch (-want +got):\n%s", diff)
	}
}

func TestPutRejectsInvalidIndex(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cat := New(m)

	_, report, err := cat.Put("docs", brokenIndex(), SourceUpload)
	if !errors.Is(err, apperrors.ErrInvalidIndex) {
		t.Fatalf("err = %v, want ErrInvalidIndex", err)
	}
	if report == nil || report.Valid || report.Errors[0].Code != searchindex.CodeIndexOutOfRange {
		t.Fatalf("unexpected report %+v", report)
	}
	if cat.Len() != 0 {
		t.Error("invalid index was installed")
	}
	if v := testutil.ToFloat64(m.ValidationFailures.WithLabelValues(searchindex.CodeIndexOutOfRange)); v != 1 {
		t.Errorf("validation_failures = %v, want 1", v)
	}

	if _, _, err := cat.Put("bad name", smallIndex(), SourceUpload); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("Put with bad name = %v", err)
	}
}

func TestNameFromPath(t *testing.T) {
	dir := filepath.Join("srv", "indexes")
	tests := []struct {
		path string
		name string
		ok   bool
	}{
		{filepath.Join(dir, "quspin.js"), "quspin", true},
		{filepath.Join(dir, "numpy.json"), "numpy", true},
		{filepath.Join(dir, "scipy", "searchindex.js"), "scipy", true},
		{filepath.Join(dir, "scipy", "other.js"), "", false},
		{filepath.Join(dir, "a", "b", "searchindex.js"), "", false},
		{filepath.Join(dir, "notes.txt"), "", false},
		{filepath.Join("elsewhere", "x.js"), "", false},
	}
	for _, tt := range tests {
		name, ok := NameFromPath(dir, tt.path)
		if name != tt.name || ok != tt.ok {
			t.Errorf("NameFromPath(%q) = %q, %v; want %q, %v", tt.path, name, ok, tt.name, tt.ok)
		}
	}
}

func TestLoadDir(t *testing.T) {
	fixture, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "quspin", "searchindex.js"), fixture)
	writeFile(t, filepath.Join(dir, "small.json"), encode(t, smallIndex()))
	writeFile(t, filepath.Join(dir, "broken.json"), encode(t, brokenIndex()))
	writeFile(t, filepath.Join(dir, "garbage.js"), []byte("Search.setIndex({docnames:"))
	writeFile(t, filepath.Join(dir, "README.md"), []byte("# indexes"))

	cat := New(nil)
	n, err := cat.LoadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"quspin", "small"}, cat.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	entry, _ := cat.Get("quspin")
	if entry.Source != SourceFile || entry.Index.Len() != 50 {
		t.Errorf("unexpected quspin entry: source %q, %d docs", entry.Source, entry.Index.Len())
	}
}

func TestLoadDirMissing(t *testing.T) {
	n, err := New(nil).LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err != nil || n != 0 {
		t.Errorf("LoadDir(missing) = %d, %v", n, err)
	}
}

func TestWatcherHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.json")
	writeFile(t, path, encode(t, smallIndex()))

	cat := New(nil)
	w := NewWatcher(cat, dir, 0)

	w.handle(rwatcher.Event{Op: rwatcher.Create, Path: path})
	first, err := cat.Get("small")
	if err != nil {
		t.Fatalf("index not loaded on create: %v", err)
	}

	// A broken rewrite keeps the previous version.
	writeFile(t, path, encode(t, brokenIndex()))
	w.handle(rwatcher.Event{Op: rwatcher.Write, Path: path})
	if got, _ := cat.Get("small"); got != first {
		t.Error("invalid rewrite replaced the installed index")
	}

	// Uploaded indexes are never removed by the watcher.
	if _, _, err := cat.Put("uploaded", smallIndex(), SourceUpload); err != nil {
		t.Fatal(err)
	}
	w.handle(rwatcher.Event{Op: rwatcher.Remove, Path: filepath.Join(dir, "uploaded.json")})
	if _, err := cat.Get("uploaded"); err != nil {
		t.Error("watcher removed an uploaded index")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	w.handle(rwatcher.Event{Op: rwatcher.Remove, Path: path})
	if _, err := cat.Get("small"); err == nil {
		t.Error("index still installed after its file was removed")
	}
}

func TestWatcherIgnoresShadowedArtifact(t *testing.T) {
	dir := t.TempDir()
	jsPath := filepath.Join(dir, "small.js")
	jsonPath := filepath.Join(dir, "small.json")
	writeFile(t, jsPath, encode(t, smallIndex()))
	writeFile(t, jsonPath, encode(t, smallIndex()))

	cat := New(nil)
	if _, err := cat.LoadDir(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	installed, err := cat.Get("small")
	if err != nil {
		t.Fatal(err)
	}
	if installed.Path != jsPath {
		t.Fatalf("installed from %s, want %s", installed.Path, jsPath)
	}
	w := NewWatcher(cat, dir, 0)

	w.handle(rwatcher.Event{Op: rwatcher.Write, Path: jsonPath})
	if got, _ := cat.Get("small"); got != installed {
		t.Error("write to the shadowed file replaced the index")
	}

	if err := os.Remove(jsonPath); err != nil {
		t.Fatal(err)
	}
	w.handle(rwatcher.Event{Op: rwatcher.Remove, Path: jsonPath})
	if got, err := cat.Get("small"); err != nil || got != installed {
		t.Errorf("removing the shadowed file changed the index: %v", err)
	}

	// With both files present, removing the loaded one hands over to the other.
	writeFile(t, jsonPath, encode(t, smallIndex()))
	if err := os.Remove(jsPath); err != nil {
		t.Fatal(err)
	}
	w.handle(rwatcher.Event{Op: rwatcher.Remove, Path: jsPath})
	got, err := cat.Get("small")
	if err != nil {
		t.Fatalf("index dropped although %s remains: %v", jsonPath, err)
	}
	if got.Path != jsonPath {
		t.Errorf("now loaded from %s, want %s", got.Path, jsonPath)
	}
}

func TestWatcherRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.json")
	cat := New(nil)
	w := NewWatcher(cat, dir, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	writeFile(t, path, encode(t, smallIndex()))
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := cat.Get("small"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("created file was never installed")
		}
		// Touch the file in case it landed before the first poll.
		now := time.Now()
		os.Chtimes(path, now, now)
		time.Sleep(20 * time.Millisecond)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := cat.Get("small"); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("removed file was never uninstalled")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type memStore struct {
	mu      sync.Mutex
	indexes map[string]*searchindex.Index
}

func newMemStore() *memStore {
	return &memStore{indexes: make(map[string]*searchindex.Index)}
}

func (s *memStore) Save(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[entry.Name] = entry.Index
	return nil
}

func (s *memStore) Load(_ context.Context, name string) (*searchindex.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, apperrors.ErrIndexNotFound
	}
	return idx, nil
}

func (s *memStore) List(_ context.Context) ([]StoredIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredIndex
	for name := range s.indexes {
		out = append(out, StoredIndex{Name: name})
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, name)
	return nil
}

func TestRestore(t *testing.T) {
	store := newMemStore()
	store.indexes["good"] = smallIndex()
	store.indexes["broken"] = brokenIndex()

	cat := New(nil)
	n, err := Restore(context.Background(), store, cat)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Errorf("restored %d, want 1", n)
	}
	if entry, err := cat.Get("good"); err != nil || entry.Source != SourceStore {
		t.Errorf("Get(good) = %+v, %v", entry, err)
	}
}

func TestHandlePublished(t *testing.T) {
	store := newMemStore()
	cat := New(nil)
	handle := HandlePublished(store, cat)
	ctx := context.Background()

	publish := func(ev PublishedEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		return handle(ctx, []byte(ev.Index), data)
	}

	// Unknown indexes and malformed payloads are dropped, not retried.
	if err := publish(PublishedEvent{Index: "missing", Checksum: "x"}); err != nil {
		t.Errorf("missing index: %v", err)
	}
	if err := handle(ctx, nil, []byte("{not json")); err != nil {
		t.Errorf("malformed payload: %v", err)
	}

	store.indexes["docs"] = smallIndex()
	if err := publish(PublishedEvent{Index: "docs", Checksum: "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entry, err := cat.Get("docs")
	if err != nil {
		t.Fatalf("index not installed: %v", err)
	}

	// Same checksum: nothing to do.
	gen := cat.Generation()
	if err := publish(PublishedEvent{Index: "docs", Checksum: entry.Checksum}); err != nil {
		t.Fatal(err)
	}
	if cat.Generation() != gen {
		t.Error("unchanged index was reinstalled")
	}

	if err := publish(PublishedEvent{Index: "docs", Removed: true}); err != nil {
		t.Fatal(err)
	}
	if cat.Len() != 0 {
		t.Error("removal event did not uninstall the index")
	}
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "small.json")
	writeFile(t, path, encode(t, smallIndex()))

	cat := New(nil)
	if err := cat.LoadFile("small", path); err != nil {
		t.Fatal(err)
	}
	before, _ := cat.Get("small")

	changed := smallIndex()
	changed.Terms["hamiltonian"] = searchindex.PostingList{{Doc: 0}}
	writeFile(t, path, encode(t, changed))
	after, err := cat.Reload(ctx, "small", nil)
	if err != nil {
		t.Fatalf("Reload(file): %v", err)
	}
	if after.Checksum == before.Checksum || after.Path != path {
		t.Errorf("reload did not pick up the file change: %+v", after)
	}

	if _, _, err := cat.Put("uploaded", smallIndex(), SourceUpload); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.Reload(ctx, "uploaded", nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("Reload(upload, no store) error = %v, want ErrInvalidInput", err)
	}

	store := newMemStore()
	store.indexes["uploaded"] = changed
	entry, err := cat.Reload(ctx, "uploaded", store)
	if err != nil {
		t.Fatalf("Reload(store): %v", err)
	}
	if entry.Source != SourceStore || len(entry.Index.Terms) != 2 {
		t.Errorf("unexpected entry after store reload: %+v", entry)
	}

	if _, err := cat.Reload(ctx, "missing", store); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("Reload(missing) error = %v, want ErrIndexNotFound", err)
	}
}
