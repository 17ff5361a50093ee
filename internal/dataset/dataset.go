// Package dataset maps identities to the images that depict them.
package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// Errors returned by dataset operations.
var (
	ErrEmptyDataset    = errors.New("dataset has no images")
	ErrUnknownIdentity = errors.New("unknown identity")
	ErrDuplicateItem   = errors.New("duplicate item id")
)

// Item is one image of one identity.
type Item struct {
	ID       string `json:"id"`       // <identity>/<file stem>
	Identity string `json:"identity"` // Directory name
	Path     string `json:"path"`     // Path relative to the dataset root
	Hash     string `json:"hash,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// Index is an in-memory label -> example-index mapping over a fixed item order.
// Item positions are stable: the i-th item keeps index i for the index lifetime,
// so they can address rows of an embedding or similarity matrix.
type Index struct {
	items      []Item
	identities []string
	byIdentity map[string][]int
	byID       map[string]int
}

// NewIndex builds an index over items in the given order.
func NewIndex(items []Item) (*Index, error) {
	idx := &Index{
		items:      items,
		byIdentity: make(map[string][]int),
		byID:       make(map[string]int, len(items)),
	}
	for i, it := range items {
		if _, dup := idx.byID[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		idx.byID[it.ID] = i
		if _, seen := idx.byIdentity[it.Identity]; !seen {
			idx.identities = append(idx.identities, it.Identity)
		}
		idx.byIdentity[it.Identity] = append(idx.byIdentity[it.Identity], i)
	}
	sort.Strings(idx.identities)
	return idx, nil
}

// Len returns the number of items.
func (idx *Index) Len() int {
	return len(idx.items)
}

// Items returns all items in index order.
func (idx *Index) Items() []Item {
	return idx.items
}

// Item returns the i-th item.
func (idx *Index) Item(i int) Item {
	return idx.items[i]
}

// Identities returns all identities, sorted.
func (idx *Index) Identities() []string {
	return idx.identities
}

// ItemsFor returns the item positions of an identity.
func (idx *Index) ItemsFor(identity string) []int {
	return idx.byIdentity[identity]
}

// IdentityOf returns the identity of the i-th item.
func (idx *Index) IdentityOf(i int) string {
	return idx.items[i].Identity
}

// Lookup returns the position of an item ID.
func (idx *Index) Lookup(id string) (int, bool) {
	i, ok := idx.byID[id]
	return i, ok
}

// Multi returns the identities with at least two images, sorted.
// Only these can form positive pairs.
func (idx *Index) Multi() []string {
	var out []string
	for _, id := range idx.identities {
		if len(idx.byIdentity[id]) >= 2 {
			out = append(out, id)
		}
	}
	return out
}

// Labels returns one integer label per item, numbered by sorted identity.
func (idx *Index) Labels() []int {
	labelOf := make(map[string]int, len(idx.identities))
	for i, id := range idx.identities {
		labelOf[id] = i
	}
	labels := make([]int, len(idx.items))
	for i, it := range idx.items {
		labels[i] = labelOf[it.Identity]
	}
	return labels
}

// Filter returns a new index with the items for which keep returns true.
func (idx *Index) Filter(keep func(Item) bool) *Index {
	var items []Item
	for _, it := range idx.items {
		if keep(it) {
			items = append(items, it)
		}
	}
	// IDs were unique in the source index, so this cannot fail.
	out, _ := NewIndex(items)
	return out
}

// Stats summarises an index.
type Stats struct {
	Items         int `json:"items"`
	Identities    int `json:"identities"`
	MultiImage    int `json:"multi_image_identities"`
	MaxPerIdent   int `json:"max_per_identity"`
	PositivePairs int `json:"positive_pairs"` // All unordered same-identity pairs
}

// Stats computes counts over the index.
func (idx *Index) Stats() Stats {
	s := Stats{Items: len(idx.items), Identities: len(idx.identities)}
	for _, id := range idx.identities {
		n := len(idx.byIdentity[id])
		if n >= 2 {
			s.MultiImage++
		}
		if n > s.MaxPerIdent {
			s.MaxPerIdent = n
		}
		s.PositivePairs += n * (n - 1) / 2
	}
	return s
}
