package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

const smallJS = `Search.setIndex({docnames:["intro","api"],filenames:["intro.rst","api.rst"],` +
	`titles:["Intro","API"],terms:{spin:[0,1]},titleterms:{api:1},objects:{},objnames:{},objtypes:{}})`

const brokenJS = `Search.setIndex({docnames:["intro"],filenames:["intro.rst"],terms:{spin:[0,3]},titleterms:{}})`

type recorder struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, events ...kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, events...)
	return nil
}

type memStore struct {
	saved   map[string]*catalog.Entry
	saveErr error
}

func (s *memStore) Save(_ context.Context, e *catalog.Entry) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[e.Name] = e
	return nil
}

func (s *memStore) Load(_ context.Context, name string) (*searchindex.Index, error) {
	e, ok := s.saved[name]
	if !ok {
		return nil, apperrors.ErrIndexNotFound
	}
	return e.Index, nil
}

func (s *memStore) List(_ context.Context) ([]catalog.StoredIndex, error) { return nil, nil }

func (s *memStore) Delete(_ context.Context, name string) error {
	delete(s.saved, name)
	return nil
}

type fixture struct {
	mux    *http.ServeMux
	cat    *catalog.Catalog
	store  *memStore
	events *recorder
}

func newFixture(maxBytes int64) *fixture {
	f := &fixture{
		cat:    catalog.New(nil),
		store:  &memStore{saved: map[string]*catalog.Entry{}},
		events: &recorder{},
	}
	h := New(publisher.New(f.cat, f.store, f.events), maxBytes)
	f.mux = http.NewServeMux()
	f.mux.HandleFunc("PUT /api/v1/indexes/{name}", h.Upload)
	f.mux.HandleFunc("DELETE /api/v1/indexes/{name}", h.Delete)
	f.mux.HandleFunc("POST /api/v1/indexes/{name}/reload", h.Reload)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	f := newFixture(1 << 20)
	rec := f.do(http.MethodPut, "/api/v1/indexes/small", smallJS)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp ingestion.UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Stored || !resp.Published || resp.Stats.Documents != 2 {
		t.Errorf("unexpected response %+v", resp)
	}

	entry, err := f.cat.Get("small")
	if err != nil {
		t.Fatalf("index not installed: %v", err)
	}
	if entry.Checksum != resp.Checksum || f.store.saved["small"] == nil {
		t.Error("catalog and store disagree with the response")
	}
	if len(f.events.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.events.events))
	}
	ev := f.events.events[0].Value.(catalog.PublishedEvent)
	if ev.Index != "small" || ev.Checksum != resp.Checksum || ev.Removed {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestUploadRejectsInvalidIndex(t *testing.T) {
	f := newFixture(1 << 20)
	rec := f.do(http.MethodPut, "/api/v1/indexes/broken", brokenJS)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp ingestion.RejectedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Report == nil || resp.Report.Valid || len(resp.Report.Errors) == 0 {
		t.Fatalf("unexpected report %+v", resp.Report)
	}
	if got := resp.Report.Errors[0].Code; got != searchindex.CodeIndexOutOfRange {
		t.Errorf("first error code = %q", got)
	}
	if f.cat.Len() != 0 || len(f.store.saved) != 0 || len(f.events.events) != 0 {
		t.Error("rejected upload had side effects")
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"undecodable", "/api/v1/indexes/x", "Search.setIndex({docnames:", http.StatusUnprocessableEntity},
		{"empty body", "/api/v1/indexes/x", "", http.StatusBadRequest},
		{"bad name", "/api/v1/indexes/.x", smallJS, http.StatusBadRequest},
		{"too large", "/api/v1/indexes/x", smallJS + strings.Repeat(" ", 64), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(int64(len(smallJS)))
			rec := f.do(http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestUploadTooLargeNamesLimit(t *testing.T) {
	f := newFixture(int64(len(smallJS)))
	rec := f.do(http.MethodPut, "/api/v1/indexes/x", smallJS+"  ")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("payload too large: artifact exceeds %d bytes", len(smallJS))
	if body["error"] != want {
		t.Errorf("error = %q, want %q", body["error"], want)
	}
}

func TestUploadStoreFailure(t *testing.T) {
	f := newFixture(1 << 20)
	f.store.saveErr = apperrors.ErrStoreUnavailable
	rec := f.do(http.MethodPut, "/api/v1/indexes/small", smallJS)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if f.cat.Len() != 0 {
		t.Error("index installed although it could not be stored")
	}
}

func TestUploadPublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(1 << 20)
	f.events.err = errors.New("broker down")
	rec := f.do(http.MethodPut, "/api/v1/indexes/small", smallJS)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ingestion.UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Published {
		t.Error("Published should be false when Kafka fails")
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(1 << 20)
	if rec := f.do(http.MethodPut, "/api/v1/indexes/small", smallJS); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}
	rec := f.do(http.MethodDelete, "/api/v1/indexes/small", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if f.cat.Len() != 0 || len(f.store.saved) != 0 {
		t.Error("index survived delete")
	}
	last := f.events.events[len(f.events.events)-1].Value.(catalog.PublishedEvent)
	if !last.Removed {
		t.Errorf("last event %+v is not a removal", last)
	}

	if rec := f.do(http.MethodDelete, "/api/v1/indexes/small", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}


func TestReload(t *testing.T) {
	f := newFixture(1 << 20)
	if rec := f.do(http.MethodPut, "/api/v1/indexes/small", smallJS); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/v1/indexes/small/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d, body %s", rec.Code, rec.Body)
	}
	var summary catalog.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.Name != "small" || summary.Source != catalog.SourceStore {
		t.Errorf("unexpected summary %+v", summary)
	}

	if rec := f.do(http.MethodPost, "/api/v1/indexes/nope/reload", ""); rec.Code != http.StatusNotFound {
		t.Errorf("reload of missing index status = %d, want 404", rec.Code)
	}
}
