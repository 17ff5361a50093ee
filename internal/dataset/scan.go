package dataset

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ScanOptions controls which files Scan indexes.
type ScanOptions struct {
	Extensions []string // Lowercase with leading dot; empty means any file
	MinImages  int      // Identities with fewer images are dropped
	SkipHash   bool     // Don't hash file content
}

// ScanStats reports what Scan kept and dropped.
type ScanStats struct {
	Items              int `json:"items"`
	Identities         int `json:"identities"`
	DroppedIdentities  int `json:"dropped_identities"`
	SkippedFiles       int `json:"skipped_files"`
	IgnoredRootEntries int `json:"ignored_root_entries"`
}

// Scan indexes an <root>/<identity>/<image> tree.
// Identities and files are visited in sorted order so item order is deterministic.
// Hidden entries, nested directories and files directly under root are ignored.
func Scan(root string, opts ScanOptions) ([]Item, *ScanStats, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading dataset root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("dataset root is not a directory: %s", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("listing dataset root: %w", err)
	}

	stats := &ScanStats{}
	var items []Item
	for _, e := range entries {
		if isHidden(e.Name()) {
			continue
		}
		if !e.IsDir() {
			stats.IgnoredRootEntries++
			continue
		}

		identityItems, skipped, err := scanIdentity(root, e.Name(), opts)
		if err != nil {
			return nil, nil, err
		}
		stats.SkippedFiles += skipped

		if len(identityItems) == 0 || len(identityItems) < opts.MinImages {
			stats.DroppedIdentities++
			continue
		}
		items = append(items, identityItems...)
		stats.Identities++
	}

	if len(items) == 0 {
		return nil, stats, ErrEmptyDataset
	}
	stats.Items = len(items)
	return items, stats, nil
}

func scanIdentity(root, identity string, opts ScanOptions) ([]Item, int, error) {
	dir := filepath.Join(root, identity)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s: %w", identity, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var items []Item
	skipped := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || isHidden(name) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !hasExtension(opts.Extensions, ext) {
			skipped++
			continue
		}

		item := Item{
			ID:       identity + "/" + strings.TrimSuffix(name, filepath.Ext(name)),
			Identity: identity,
			Path:     filepath.ToSlash(filepath.Join(identity, name)),
		}
		if !opts.SkipHash {
			hash, size, err := HashFile(filepath.Join(dir, name))
			if err != nil {
				return nil, 0, err
			}
			item.Hash = hash
			item.Bytes = size
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

// HashFile returns the hex blake2b-256 digest and size of a file.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, fmt.Errorf("creating hash: %w", err)
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func hasExtension(exts []string, ext string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
