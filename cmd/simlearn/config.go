package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/matsen/simlearn/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set workspace configuration values.

Usage:
  simlearn config                       # Show all config
  simlearn config margin                # Get specific value
  simlearn config margin 0.3            # Set value
  simlearn config dataset-root ~/lfw    # Point at a dataset

Keys:
  dataset-root  Directory containing one subdirectory per identity
  extensions    Comma-separated image extensions (e.g. .jpg,.png)
  min-images    Identities with fewer images are skipped by scan
  margin        Semi-hard mining margin (>= 0)
  seed          Seed for pair and triplet sampling
  metric        Retrieval metric (cosine, euclidean)
  pixel-size    Side length of the raw-pixel embedding baseline`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

// configKeys lists the keys in display order.
var configKeys = []string{"dataset-root", "extensions", "min-images", "margin", "seed", "metric", "pixel-size"}

func runConfig(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	// No args: show all config
	if len(args) == 0 {
		if humanOutput {
			for _, key := range configKeys {
				value, _ := configValue(cfg, key)
				fmt.Printf("%-13s %s\n", key+":", value)
			}
		} else {
			outputJSON(cfg)
		}
		return nil
	}

	key := normalizeKey(args[0])

	// One arg: get specific value
	if len(args) == 1 {
		value, ok := configValue(cfg, key)
		if !ok {
			exitWithError(ExitError, "unknown configuration key: %s", args[0])
		}
		if humanOutput {
			fmt.Println(value)
		} else {
			outputJSON(map[string]string{strings.ReplaceAll(key, "-", "_"): value})
		}
		return nil
	}

	// Two args: set value
	value := args[1]
	if code, err := setConfigValue(cfg, key, value); err != nil {
		exitWithError(code, "%v", err)
	}

	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "saving config: %v", err)
	}

	if humanOutput {
		fmt.Printf("Updated %s to %s\n", key, value)
	} else {
		outputJSON(UpdateResponse{
			Status: "updated",
			Key:    key,
			Value:  value,
		})
	}

	return nil
}

// configValue renders a config field as a string.
func configValue(cfg *config.Config, key string) (string, bool) {
	switch key {
	case "dataset-root":
		return cfg.DatasetRoot, true
	case "extensions":
		return strings.Join(cfg.Extensions, ","), true
	case "min-images":
		return strconv.Itoa(cfg.MinImages), true
	case "margin":
		return strconv.FormatFloat(float64(cfg.Margin), 'g', -1, 32), true
	case "seed":
		return strconv.FormatInt(cfg.Seed, 10), true
	case "metric":
		return cfg.Metric, true
	case "pixel-size":
		return strconv.Itoa(cfg.PixelSize), true
	}
	return "", false
}

// setConfigValue parses and validates value into cfg.
// On failure it returns the exit code to use.
func setConfigValue(cfg *config.Config, key, value string) (int, error) {
	switch key {
	case "dataset-root":
		if err := config.ValidateDatasetRoot(value); err != nil {
			return ExitConfigError, err
		}
		abs, err := filepath.Abs(config.ExpandPath(value))
		if err != nil {
			return ExitConfigError, fmt.Errorf("resolving dataset root: %w", err)
		}
		cfg.DatasetRoot = abs

	case "extensions":
		var exts []string
		for _, ext := range strings.Split(value, ",") {
			if ext = config.NormalizeExtension(ext); ext != "" {
				exts = append(exts, ext)
			}
		}
		if len(exts) == 0 {
			return ExitError, fmt.Errorf("no extensions given")
		}
		cfg.Extensions = exts

	case "min-images":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return ExitError, fmt.Errorf("invalid min-images: %s (must be a positive integer)", value)
		}
		cfg.MinImages = n

	case "margin":
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return ExitError, fmt.Errorf("invalid margin: %s", value)
		}
		if err := config.ValidateMargin(float32(f)); err != nil {
			return ExitError, err
		}
		cfg.Margin = float32(f)

	case "seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ExitError, fmt.Errorf("invalid seed: %s", value)
		}
		cfg.Seed = n

	case "metric":
		if err := config.ValidateMetric(value); err != nil {
			return ExitError, err
		}
		cfg.Metric = value

	case "pixel-size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return ExitError, fmt.Errorf("invalid pixel-size: %s (must be a positive integer)", value)
		}
		cfg.PixelSize = n

	default:
		return ExitError, fmt.Errorf("unknown configuration key: %s", key)
	}
	return ExitSuccess, nil
}

// normalizeKey converts key formats (dataset-root, dataset_root, DATASET-ROOT) to a consistent format
func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "-")
	return key
}
