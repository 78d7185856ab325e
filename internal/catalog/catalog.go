// Package catalog holds the set of named search indexes served by the
// process. Indexes are loaded from a data directory, uploaded over HTTP or
// pulled from PostgreSQL when a peer publishes one; every entry is validated
// before it becomes searchable.
package catalog

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Sources recorded on entries and in reload metrics.
const (
	SourceFile   = "file"
	SourceUpload = "upload"
	SourceStore  = "store"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName reports whether name can identify an index. Names appear in
// URLs, file names and cache keys, so they are restricted to a safe charset.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: index name %q must match %s", apperrors.ErrInvalidInput, name, namePattern)
	}
	return nil
}

// Entry is one installed index. Entries are immutable; replacing an index
// installs a new Entry.
type Entry struct {
	Name     string
	Index    *searchindex.Index
	Checksum string
	Source   string
	// Path is the file the entry was read from; empty unless Source is file.
	Path     string
	LoadedAt time.Time
	Report   *searchindex.ValidationReport
}

// Summary is the JSON view of an Entry.
type Summary struct {
	Name     string            `json:"name"`
	Checksum string            `json:"checksum"`
	Source   string            `json:"source"`
	LoadedAt time.Time         `json:"loaded_at"`
	Stats    searchindex.Stats `json:"stats"`
	Warnings int               `json:"warnings"`
}

func (e *Entry) Summary() Summary {
	return Summary{
		Name:     e.Name,
		Checksum: e.Checksum,
		Source:   e.Source,
		LoadedAt: e.LoadedAt,
		Stats:    e.Report.Stats,
		Warnings: len(e.Report.Warnings),
	}
}

// ChangeFunc is called after an index is installed or removed. removed is
// true for removals.
type ChangeFunc func(name string, removed bool)

type Catalog struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	generation atomic.Uint64
	onChange   []ChangeFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an empty catalog. m may be nil.
func New(m *metrics.Metrics) *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
		metrics: m,
		logger:  slog.Default().With("component", "catalog"),
	}
}

// OnChange registers fn to run after every install or removal.
func (c *Catalog) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Put validates idx and installs it under name, replacing any previous
// entry. The report is returned even when validation fails; the error then
// wraps apperrors.ErrInvalidIndex and the catalog is unchanged.
func (c *Catalog) Put(name string, idx *searchindex.Index, source string) (*Entry, *searchindex.ValidationReport, error) {
	entry, report, err := c.Prepare(name, idx, source)
	if err != nil {
		return nil, report, err
	}
	c.Install(entry)
	return entry, report, nil
}

// Prepare validates idx and builds the entry Put would install, without
// touching the catalog.
func (c *Catalog) Prepare(name string, idx *searchindex.Index, source string) (*Entry, *searchindex.ValidationReport, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	report := searchindex.Validate(idx)
	if !report.Valid {
		c.recordInvalid(report)
		c.recordReload(source, "invalid")
		return nil, report, fmt.Errorf("index %s: %w", name, report.Err())
	}
	checksum, err := idx.Checksum()
	if err != nil {
		return nil, report, fmt.Errorf("checksumming index %s: %w", name, err)
	}
	return &Entry{
		Name:     name,
		Index:    idx,
		Checksum: checksum,
		Source:   source,
		LoadedAt: time.Now().UTC(),
		Report:   report,
	}, report, nil
}

// Install makes a prepared entry searchable.
func (c *Catalog) Install(entry *Entry) {
	name, report := entry.Name, entry.Report

	c.mu.Lock()
	prev, replaced := c.entries[name]
	c.entries[name] = entry
	count := len(c.entries)
	hooks := c.onChange
	c.mu.Unlock()
	c.generation.Add(1)

	if replaced && prev.Checksum == entry.Checksum {
		c.logger.Debug("index reinstalled unchanged", "index", name, "source", entry.Source)
	} else {
		c.logger.Info("index installed",
			"index", name,
			"source", entry.Source,
			"documents", report.Stats.Documents,
			"terms", report.Stats.Terms,
			"warnings", len(report.Warnings),
			"replaced", replaced,
		)
	}
	c.recordReload(entry.Source, "ok")
	if c.metrics != nil {
		c.metrics.IndexesLoaded.Set(float64(count))
		c.metrics.IndexDocuments.WithLabelValues(name).Set(float64(report.Stats.Documents))
		c.metrics.IndexTerms.WithLabelValues(name).Set(float64(report.Stats.Terms))
	}
	for _, fn := range hooks {
		fn(name, false)
	}
}

// Get returns the entry installed under name.
func (c *Catalog) Get(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name)
	}
	return entry, nil
}

// Remove uninstalls name. It reports whether an entry existed.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	_, ok := c.entries[name]
	delete(c.entries, name)
	count := len(c.entries)
	hooks := c.onChange
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.generation.Add(1)
	c.logger.Info("index removed", "index", name)
	if c.metrics != nil {
		c.metrics.IndexesLoaded.Set(float64(count))
		c.metrics.IndexDocuments.DeleteLabelValues(name)
		c.metrics.IndexTerms.DeleteLabelValues(name)
	}
	for _, fn := range hooks {
		fn(name, true)
	}
	return true
}

// Names returns the installed index names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Entries returns a snapshot of every entry, sorted by name.
func (c *Catalog) Entries() []*Entry {
	c.mu.RLock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Generation increases on every install or removal.
func (c *Catalog) Generation() uint64 {
	return c.generation.Load()
}

func (c *Catalog) recordReload(source, status string) {
	if c.metrics != nil {
		c.metrics.IndexReloadsTotal.WithLabelValues(source, status).Inc()
	}
}

func (c *Catalog) recordInvalid(report *searchindex.ValidationReport) {
	if c.metrics == nil {
		return
	}
	for _, issue := range report.Errors {
		c.metrics.ValidationFailures.WithLabelValues(issue.Code).Inc()
	}
}
