// Package separator wraps the external vocal-separation tool (a
// Demucs-class CLI) behind the single operation the Processor needs:
// run it on one chunk, bounded by a timeout, and locate its stems.
package separator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Static errors for the named failure modes of the adapter contract (§4.2).
var (
	// ErrSeparationTimeout is returned when the tool exceeds its bound.
	ErrSeparationTimeout = errors.New("separator: timed out")
	// ErrSeparationFailed is returned on nonzero exit.
	ErrSeparationFailed = errors.New("separator: tool exited nonzero")
	// ErrOutputMissing is returned when no acceptable stem file is found.
	ErrOutputMissing = errors.New("separator: no acceptable output found")
)

// accompanimentNames lists the conventional output names searched for
// the accompaniment (instrumental) stem, in priority order (§4.2).
var accompanimentNames = []string{"no_vocals.wav", "accompaniment.wav", "other.wav"}

// stemNames maps the remaining named stems the Separator Adapter
// exposes for variant mixing (SPEC_FULL.md §5: full stem set, not just
// accompaniment) to their conventional output filenames.
var stemNames = map[string]string{
	"vocals": "vocals.wav",
	"drums":  "drums.wav",
	"bass":   "bass.wav",
	"other":  "other.wav",
}

// Adapter runs an external separation binary via exec.
type Adapter struct {
	// BinPath is the separation tool's executable, e.g. "demucs".
	BinPath string
	// Args are extra arguments inserted before the input/output
	// positional arguments (e.g. model selection flags).
	Args []string
}

// NewAdapter constructs an Adapter. An empty binPath defaults to "demucs".
func NewAdapter(binPath string, args ...string) *Adapter {
	if binPath == "" {
		binPath = "demucs"
	}
	return &Adapter{BinPath: binPath, Args: args}
}

// Result is the set of stems the adapter located after a successful run.
type Result struct {
	// AccompanimentPath is the first-match accompaniment stem, per the
	// adapter's documented search order.
	AccompanimentPath string
	// Stems maps stem name (vocals/drums/bass/other) to its absolute
	// path, when found, for variant mixing (SPEC_FULL.md §5).
	Stems map[string]string
}

// Separate runs the external tool on chunkWav, writing its output tree
// under outDir, bounded by timeout (0 means no bound), per §4.2. The
// adapter never retries; retry policy belongs to the Processor.
func (a *Adapter) Separate(ctx context.Context, chunkWav, outDir string, timeout time.Duration) (Result, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("separator: create out dir: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append(append([]string{}, a.Args...), "-o", outDir, chunkWav)
	// #nosec G204 - BinPath is operator configuration, not user input
	cmd := exec.CommandContext(runCtx, a.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{}, fmt.Errorf("%w: after %s", ErrSeparationTimeout, timeout)
		}
		return Result{}, fmt.Errorf("%w: %v, stderr: %s", ErrSeparationFailed, err, stderr.String())
	}

	result, err := locateStems(outDir)
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// locateStems recursively searches dir for the accompaniment stem
// (first match among the conventional names wins, §4.2) and for the
// remaining named stems used by variant mixing.
func locateStems(dir string) (Result, error) {
	found := map[string]string{}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if _, ok := found[name]; !ok {
			found[name] = path
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("separator: scan output: %w", err)
	}

	var accompaniment string
	for _, name := range accompanimentNames {
		if p, ok := found[name]; ok {
			accompaniment = p
			break
		}
	}
	if accompaniment == "" {
		return Result{}, ErrOutputMissing
	}

	stems := map[string]string{}
	for stem, filename := range stemNames {
		if p, ok := found[filename]; ok {
			stems[stem] = p
		}
	}

	return Result{AccompanimentPath: accompaniment, Stems: stems}, nil
}
