package catalog

import (
	"context"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Reload re-reads name from where its current entry came from: the file it
// was loaded from, or the store for stored and uploaded indexes. store may
// be nil, in which case only file-backed entries can be reloaded. The
// previous entry stays installed when the reload fails.
func (c *Catalog) Reload(ctx context.Context, name string, store IndexStore) (*Entry, error) {
	entry, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	switch {
	case entry.Source == SourceFile && entry.Path != "":
		if err := c.LoadFile(name, entry.Path); err != nil {
			return nil, err
		}
	case store != nil:
		if err := c.install(ctx, store, name); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: index %s was %s and no store is configured", apperrors.ErrInvalidInput, name, entry.Source)
	}
	return c.Get(name)
}
