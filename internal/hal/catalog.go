package hal

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

// Catalog is an immutable set of effect descriptors keyed by effect UUID.
type Catalog struct {
	byUUID map[uuid.UUID]effect.Descriptor
}

// NewCatalog builds a catalog. Later descriptors with a duplicate UUID
// replace earlier ones.
func NewCatalog(descs ...effect.Descriptor) *Catalog {
	c := &Catalog{byUUID: make(map[uuid.UUID]effect.Descriptor, len(descs))}
	for _, d := range descs {
		c.byUUID[d.UUID] = d
	}
	return c
}

// CatalogFromConfig parses the configured effect library. Entries without a
// type UUID get the nil UUID; the classification defaults to post_proc.
func CatalogFromConfig(entries []config.EffectLibraryEntry) (*Catalog, error) {
	descs := make([]effect.Descriptor, 0, len(entries))
	for i, e := range entries {
		id, err := uuid.Parse(e.UUID)
		if err != nil {
			return nil, fmt.Errorf("%w: library[%d] uuid %q: %w", ErrInvalidCatalog, i, e.UUID, err)
		}

		var typeID uuid.UUID
		if e.Type != "" {
			if typeID, err = uuid.Parse(e.Type); err != nil {
				return nil, fmt.Errorf("%w: library[%d] type %q: %w", ErrInvalidCatalog, i, e.Type, err)
			}
		}

		class := effect.FlagTypePostProc
		if e.Classification != "" {
			if class, err = effect.ParseClassification(e.Classification); err != nil {
				return nil, fmt.Errorf("%w: library[%d]: %w", ErrInvalidCatalog, i, err)
			}
		}

		descs = append(descs, effect.Descriptor{
			Type:        typeID,
			UUID:        id,
			Name:        e.Name,
			Implementor: e.Implementor,
			Flags:       class,
		})
	}
	return NewCatalog(descs...), nil
}

// Lookup returns the descriptor for an effect UUID.
func (c *Catalog) Lookup(id uuid.UUID) (effect.Descriptor, error) {
	d, ok := c.byUUID[id]
	if !ok {
		return effect.Descriptor{}, fmt.Errorf("%w: %s", ErrEffectNotFound, id)
	}
	return d, nil
}

// FindByName returns the descriptor with the given name, ignoring case.
func (c *Catalog) FindByName(name string) (effect.Descriptor, error) {
	for _, d := range c.byUUID {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return effect.Descriptor{}, fmt.Errorf("%w: %q", ErrEffectNotFound, name)
}

// All returns every descriptor sorted by name.
func (c *Catalog) All() []effect.Descriptor {
	all := make([]effect.Descriptor, 0, len(c.byUUID))
	for _, d := range c.byUUID {
		all = append(all, d)
	}
	slices.SortFunc(all, func(a, b effect.Descriptor) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.UUID.String(), b.UUID.String()))
	})
	return all
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.byUUID)
}
