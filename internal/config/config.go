// Package config handles workspace configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents workspace configuration stored in .simlearn/config.json.
type Config struct {
	DatasetRoot string   `json:"dataset_root"`         // Directory of <identity>/<image> files
	Extensions  []string `json:"extensions,omitempty"` // Image extensions to index, lowercase with dot
	MinImages   int      `json:"min_images,omitempty"` // Identities with fewer images are skipped
	Margin      float32  `json:"margin"`               // Semi-hard mining margin
	Seed        int64    `json:"seed"`                 // Seed for all sampling
	Metric      string   `json:"metric"`               // cosine or euclidean
	PixelSize   int      `json:"pixel_size,omitempty"` // Side length of the raw-pixel baseline
}

const (
	WorkspaceDir   = ".simlearn"
	ConfigFile     = "config.json"
	ItemsFile      = "items.jsonl"
	CacheDir       = "cache"
	DBFile         = "items.db"
	IndexFile      = "embeddings.gob"
	DefaultMargin  = 0.25
	DefaultSeed    = 1337
	DefaultMetric  = "cosine"
	DefaultPixels  = 32
	MetricCosine   = "cosine"
	MetricEuclid   = "euclidean"
	defaultMinImgs = 1
)

// DefaultExtensions lists the image extensions indexed when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// ValidMetrics lists the supported retrieval metrics.
var ValidMetrics = []string{MetricCosine, MetricEuclid}

// ErrNotWorkspace is returned when no .simlearn directory is found.
var ErrNotWorkspace = errors.New("not in a simlearn workspace (no .simlearn directory found)")

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Extensions: append([]string(nil), DefaultExtensions...),
		MinImages:  defaultMinImgs,
		Margin:     DefaultMargin,
		Seed:       DefaultSeed,
		Metric:     DefaultMetric,
		PixelSize:  DefaultPixels,
	}
}

// WorkspacePath returns the path to the .simlearn directory from a root path.
func WorkspacePath(root string) string {
	return filepath.Join(root, WorkspaceDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, WorkspaceDir, ConfigFile)
}

// ItemsPath returns the path to items.jsonl from a root path.
func ItemsPath(root string) string {
	return filepath.Join(root, WorkspaceDir, ItemsFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, WorkspaceDir, CacheDir)
}

// DBPath returns the path to items.db from a root path.
func DBPath(root string) string {
	return filepath.Join(root, WorkspaceDir, CacheDir, DBFile)
}

// IndexPath returns the path to the embedding index from a root path.
func IndexPath(root string) string {
	return filepath.Join(root, WorkspaceDir, CacheDir, IndexFile)
}

// IsWorkspace checks if the given path contains a simlearn workspace.
func IsWorkspace(root string) bool {
	info, err := os.Stat(WorkspacePath(root))
	return err == nil && info.IsDir()
}

// FindWorkspace walks up from the given path to find a simlearn workspace.
func FindWorkspace(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsWorkspace(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotWorkspace
		}
		abs = parent
	}
}

// Init creates the workspace directories and writes cfg if no config exists yet.
func Init(root string, cfg *Config) error {
	if err := os.MkdirAll(CachePath(root), 0755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	if _, err := os.Stat(ConfigPath(root)); err == nil {
		return nil
	}
	return cfg.Save(root)
}

// Load reads configuration from the workspace at the given root.
// Missing fields are filled with defaults.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	for i, ext := range c.Extensions {
		c.Extensions[i] = NormalizeExtension(ext)
	}
	if c.MinImages <= 0 {
		c.MinImages = defaultMinImgs
	}
	if c.Metric == "" {
		c.Metric = DefaultMetric
	}
	if c.PixelSize <= 0 {
		c.PixelSize = DefaultPixels
	}
}

// Save writes configuration to the workspace at the given root.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// ResolveDatasetRoot returns the dataset root as an absolute path.
// Relative roots are resolved against the workspace root.
func (c *Config) ResolveDatasetRoot(root string) string {
	path := ExpandPath(c.DatasetRoot)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ValidateDatasetRoot checks that the dataset root exists and is a directory.
func ValidateDatasetRoot(path string) error {
	if path == "" {
		return nil // Empty is allowed (not yet configured)
	}

	expandedPath := ExpandPath(path)

	info, err := os.Stat(expandedPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", expandedPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", expandedPath)
	}

	return nil
}

// ValidateMetric checks that the metric value is supported.
func ValidateMetric(metric string) error {
	for _, valid := range ValidMetrics {
		if metric == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid metric: %s (valid: %v)", metric, ValidMetrics)
}

// ValidateMargin rejects negative margins.
func ValidateMargin(margin float32) error {
	if margin < 0 {
		return fmt.Errorf("invalid margin: %v (must be >= 0)", margin)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
