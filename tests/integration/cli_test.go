// Package integration provides integration tests for simlearn commands.
package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

var (
	slBinary     string
	slBinaryOnce sync.Once
	slBinaryErr  error
)

// getBinary builds the simlearn binary once and returns its path.
func getBinary(t *testing.T) string {
	t.Helper()
	slBinaryOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			slBinaryErr = os.ErrInvalid
			return
		}
		moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filename)))

		tmpDir, err := os.MkdirTemp("", "simlearn-test-*")
		if err != nil {
			slBinaryErr = err
			return
		}
		slBinary = filepath.Join(tmpDir, "simlearn")

		cmd := exec.Command("go", "build", "-o", slBinary, "./cmd/simlearn")
		cmd.Dir = moduleRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			slBinaryErr = &buildError{output: string(output), err: err}
			return
		}
	})
	if slBinaryErr != nil {
		t.Fatalf("failed to build simlearn: %v", slBinaryErr)
	}
	return slBinary
}

type buildError struct {
	output string
	err    error
}

func (e *buildError) Error() string {
	return e.err.Error() + ": " + e.output
}

// writeImage writes an 8x8 gradient PNG. horizontal picks the gradient
// direction, which is what separates identities under the pixel baseline.
func writeImage(t *testing.T, path string, horizontal bool, offset uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := x
			if !horizontal {
				v = y
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v*24) + offset})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// setupWorkspace creates a dataset (alice: 3 images, bob: 2, carol: 1) and
// an initialized, scanned workspace next to it.
func setupWorkspace(t *testing.T) (workDir, dataDir string) {
	t.Helper()
	tmpDir := t.TempDir()
	dataDir = filepath.Join(tmpDir, "faces")
	workDir = filepath.Join(tmpDir, "work")

	people := []struct {
		name       string
		n          int
		horizontal bool
	}{
		{"alice", 3, true},
		{"bob", 2, false},
		{"carol", 1, true},
	}
	for _, p := range people {
		dir := filepath.Join(dataDir, p.name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < p.n; i++ {
			writeImage(t, filepath.Join(dir, fmt.Sprintf("%d.png", i)), p.horizontal, uint8(5*i))
		}
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatal(err)
	}

	mustRun(t, workDir, "init", "--dataset", dataDir)
	mustRun(t, workDir, "scan")
	return workDir, dataDir
}

// run executes simlearn in workDir with an isolated global config.
func run(t *testing.T, workDir string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(getBinary(t), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"SIMLEARN_ROOT="+workDir,
		"XDG_CONFIG_HOME="+filepath.Join(workDir, "xdg"),
	)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(output), exitErr.ExitCode()
		}
		t.Fatalf("running simlearn %v: %v", args, err)
	}
	return string(output), 0
}

func mustRun(t *testing.T, workDir string, args ...string) string {
	t.Helper()
	out, code := run(t, workDir, args...)
	if code != 0 {
		t.Fatalf("simlearn %v exited %d\nOutput: %s", args, code, out)
	}
	return out
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, out)
	}
}

func TestInitTwiceFails(t *testing.T) {
	workDir, _ := setupWorkspace(t)
	if _, code := run(t, workDir, "init"); code == 0 {
		t.Error("second init should fail")
	}
}

func TestScanAndInfo(t *testing.T) {
	workDir, _ := setupWorkspace(t)

	var scan struct {
		Items         int `json:"items"`
		Identities    int `json:"identities"`
		MultiImage    int `json:"multi_image_identities"`
		PositivePairs int `json:"positive_pairs"`
	}
	decode(t, mustRun(t, workDir, "scan"), &scan)
	if scan.Items != 6 || scan.Identities != 3 {
		t.Errorf("scan = %+v, want 6 items over 3 identities", scan)
	}
	if scan.MultiImage != 2 || scan.PositivePairs != 4 {
		t.Errorf("scan = %+v, want 2 multi-image identities and 4 positive pairs", scan)
	}

	var info struct {
		Dataset struct {
			Items int `json:"items"`
		} `json:"dataset"`
		Margin float32 `json:"margin"`
	}
	decode(t, mustRun(t, workDir, "info"), &info)
	if info.Dataset.Items != 6 || info.Margin != 0.25 {
		t.Errorf("info = %+v", info)
	}

	var items []struct {
		ID string `json:"id"`
	}
	decode(t, mustRun(t, workDir, "list", "--identity", "bob"), &items)
	if len(items) != 2 || items[0].ID != "bob/0" {
		t.Errorf("list --identity bob = %+v", items)
	}
}

func TestRebuild(t *testing.T) {
	workDir, _ := setupWorkspace(t)
	if err := os.Remove(filepath.Join(workDir, ".simlearn", "cache", "items.db")); err != nil {
		t.Fatal(err)
	}

	var result struct {
		Items int `json:"items"`
	}
	decode(t, mustRun(t, workDir, "rebuild"), &result)
	if result.Items != 6 {
		t.Errorf("rebuild restored %d items, want 6", result.Items)
	}
}

func TestConfigSetGet(t *testing.T) {
	workDir, _ := setupWorkspace(t)

	mustRun(t, workDir, "config", "margin", "0.5")
	var got map[string]string
	decode(t, mustRun(t, workDir, "config", "margin"), &got)
	if got["margin"] != "0.5" {
		t.Errorf("config margin = %v", got)
	}

	if _, code := run(t, workDir, "config", "metric", "hamming"); code == 0 {
		t.Error("invalid metric should be rejected")
	}
}

type pairsOutput struct {
	Seed      int64 `json:"seed"`
	Positives int   `json:"positives"`
	Negatives int   `json:"negatives"`
	Pairs     []struct {
		A     string `json:"a"`
		B     string `json:"b"`
		Label int    `json:"label"`
	} `json:"pairs"`
}

func TestPairsDeterministic(t *testing.T) {
	workDir, _ := setupWorkspace(t)

	var first, second pairsOutput
	decode(t, mustRun(t, workDir, "pairs", "--balanced", "--seed", "7"), &first)
	decode(t, mustRun(t, workDir, "pairs", "--balanced", "--seed", "7"), &second)

	if first.Positives != 4 || first.Negatives != 4 {
		t.Errorf("balanced pairs = %d positive, %d negative, want 4 and 4", first.Positives, first.Negatives)
	}
	if len(first.Pairs) != len(second.Pairs) {
		t.Fatalf("runs differ in length: %d vs %d", len(first.Pairs), len(second.Pairs))
	}
	for i := range first.Pairs {
		if first.Pairs[i] != second.Pairs[i] {
			t.Errorf("pair %d differs: %+v vs %+v", i, first.Pairs[i], second.Pairs[i])
		}
	}

	var dflt pairsOutput
	decode(t, mustRun(t, workDir, "pairs"), &dflt)
	if dflt.Seed != 1337 {
		t.Errorf("default seed = %d, want config seed 1337", dflt.Seed)
	}
}

func TestPairsToFile(t *testing.T) {
	workDir, _ := setupWorkspace(t)
	out := filepath.Join(workDir, "pairs.jsonl")

	var result struct {
		Total int    `json:"total"`
		Path  string `json:"path"`
	}
	decode(t, mustRun(t, workDir, "pairs", "--negatives", "3", "-o", out), &result)
	if result.Total != 7 || result.Path != out {
		t.Errorf("pairs -o = %+v, want 7 pairs written to %s", result, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestIndexSimilarRecallMine(t *testing.T) {
	workDir, _ := setupWorkspace(t)

	var build struct {
		ItemsIndexed int    `json:"items_indexed"`
		Model        string `json:"model"`
		Dimensions   int    `json:"dimensions"`
	}
	decode(t, mustRun(t, workDir, "index", "build", "--pixel-size", "4"), &build)
	if build.ItemsIndexed != 6 || build.Model != "pixels-4" || build.Dimensions != 16 {
		t.Errorf("index build = %+v", build)
	}

	if _, code := run(t, workDir, "index", "check"); code != 0 {
		t.Errorf("index check exited %d on a fresh index", code)
	}

	var similar struct {
		Source struct {
			Identity string `json:"identity"`
		} `json:"source"`
		Similar []struct {
			ID string `json:"id"`
		} `json:"similar"`
	}
	decode(t, mustRun(t, workDir, "similar", "alice/0", "-k", "2"), &similar)
	if similar.Source.Identity != "alice" || len(similar.Similar) != 2 {
		t.Errorf("similar = %+v", similar)
	}
	for _, s := range similar.Similar {
		if s.ID == "alice/0" {
			t.Error("query item returned as its own neighbour")
		}
	}

	if _, code := run(t, workDir, "similar", "nobody/0"); code == 0 {
		t.Error("similar on an unknown item should fail")
	}

	var recall struct {
		Queries int `json:"queries"`
		Recalls []struct {
			K     int     `json:"k"`
			Value float64 `json:"recall"`
		} `json:"recalls"`
	}
	decode(t, mustRun(t, workDir, "recall", "-k", "5,1"), &recall)
	if recall.Queries != 5 || len(recall.Recalls) != 2 {
		t.Fatalf("recall = %+v", recall)
	}
	if recall.Recalls[0].K != 1 || recall.Recalls[1].K != 5 || recall.Recalls[1].Value != 1 {
		t.Errorf("recall curve = %+v", recall.Recalls)
	}

	var triplets struct {
		Total    int  `json:"total"`
		Mined    bool `json:"mined"`
		SemiHard int  `json:"semi_hard"`
		Fallback int  `json:"fallback"`
	}
	decode(t, mustRun(t, workDir, "triplets", "--mine", "--margin", "0.1"), &triplets)
	if !triplets.Mined || triplets.Total != 4 || triplets.SemiHard+triplets.Fallback != 4 {
		t.Errorf("triplets --mine = %+v", triplets)
	}
}

func TestIndexCheckDetectsChangedImages(t *testing.T) {
	workDir, dataDir := setupWorkspace(t)
	mustRun(t, workDir, "index", "build", "--pixel-size", "4")

	writeImage(t, filepath.Join(dataDir, "bob", "0.png"), true, 50)
	mustRun(t, workDir, "scan")

	var check struct {
		Status       string   `json:"status"`
		ItemsChanged int      `json:"items_changed"`
		ChangedIDs   []string `json:"changed_ids"`
	}
	out, code := run(t, workDir, "index", "check")
	if code != 6 {
		t.Fatalf("index check exited %d, want 6\nOutput: %s", code, out)
	}
	decode(t, out, &check)
	if check.Status != "stale" || check.ItemsChanged != 1 || check.ChangedIDs[0] != "bob/0" {
		t.Errorf("index check = %+v", check)
	}

	var update struct {
		ItemsIndexed int `json:"items_indexed"`
	}
	decode(t, mustRun(t, workDir, "index", "build", "--pixel-size", "4", "--stale-only"), &update)
	if update.ItemsIndexed != 1 {
		t.Errorf("stale-only build indexed %d items, want 1", update.ItemsIndexed)
	}
	if _, code := run(t, workDir, "index", "check"); code != 0 {
		t.Errorf("index check exited %d after update", code)
	}
}

func TestIndexFromFile(t *testing.T) {
	workDir, _ := setupWorkspace(t)

	vectors := `{"id":"alice/0","vector":[1,0]}
{"id":"alice/1","vector":[0.9,0.1]}
{"id":"bob/0","vector":[0,1]}
{"id":"bob/1","vector":[0.1,0.9]}
`
	path := filepath.Join(workDir, "trained.jsonl")
	if err := os.WriteFile(path, []byte(vectors), 0644); err != nil {
		t.Fatal(err)
	}

	var build struct {
		ItemsIndexed int    `json:"items_indexed"`
		ItemsSkipped int    `json:"items_skipped"`
		Model        string `json:"model"`
	}
	decode(t, mustRun(t, workDir, "index", "build", "--provider", "file", "--file", path), &build)
	if build.ItemsIndexed != 4 || build.ItemsSkipped != 2 || build.Model != "file:trained" {
		t.Errorf("index build --provider file = %+v", build)
	}

	var recall struct {
		Recalls []struct {
			Value float64 `json:"recall"`
		} `json:"recalls"`
	}
	decode(t, mustRun(t, workDir, "recall", "-k", "1"), &recall)
	if len(recall.Recalls) != 1 || recall.Recalls[0].Value != 1 {
		t.Errorf("recall@1 = %+v, want 1", recall.Recalls)
	}

	if _, code := run(t, workDir, "similar", "carol/0"); code != 4 {
		t.Errorf("similar on an unembedded item exited %d, want 4", code)
	}
}
