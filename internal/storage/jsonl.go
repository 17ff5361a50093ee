// Package storage handles data persistence in JSONL and SQLite formats.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/simlearn/internal/dataset"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadItems reads all items from a JSONL manifest.
func ReadItems(path string) ([]dataset.Item, error) {
	return ReadJSONL[dataset.Item](path)
}

// WriteItems writes all items to a JSONL manifest, replacing existing content.
func WriteItems(path string, items []dataset.Item) error {
	return WriteJSONL(path, items)
}

// ReadJSONL reads every line of a JSONL file into a T.
// A missing file yields an empty slice.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return DecodeJSONL[T](f)
}

// DecodeJSONL decodes one T per non-empty line of r.
func DecodeJSONL[T any](r io.Reader) ([]T, error) {
	var out []T
	scanner := bufio.NewScanner(r)

	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		out = append(out, v)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}

	return out, nil
}

// WriteJSONL writes values to path, one JSON document per line.
// The file is written to a temp path first and renamed into place.
func WriteJSONL[T any](path string, values []T) error {
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if err := EncodeJSONL(w, values); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// EncodeJSONL writes values to w, one JSON document per line.
func EncodeJSONL[T any](w io.Writer, values []T) error {
	enc := json.NewEncoder(w)
	for i, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}
