package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	doneFile     = ".done"
	emptyFile    = ".tried-empty"
	progressFile = ".progress-range"
)

// progressTracker records which symbols a gathering pass has already
// written or found empty so that an interrupted pass resumes where it
// stopped. Progress is bound to one date range; a different range resets
// it.
type progressTracker struct {
	mu    sync.Mutex
	dir   string
	done  map[string]struct{}
	empty map[string]struct{}
	files map[string]*os.File
}

// newProgressTracker loads the progress stored in dir for rangeKey.
func newProgressTracker(dir, rangeKey string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		dir:   dir,
		done:  make(map[string]struct{}),
		empty: make(map[string]struct{}),
		files: make(map[string]*os.File),
	}

	rangePath := filepath.Join(dir, progressFile)
	prev, _ := os.ReadFile(rangePath)
	if strings.TrimSpace(string(prev)) != rangeKey {
		os.Remove(filepath.Join(dir, doneFile))
		os.Remove(filepath.Join(dir, emptyFile))
		if err := os.WriteFile(rangePath, []byte(rangeKey), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", progressFile, err)
		}
	}

	for name, set := range map[string]map[string]struct{}{doneFile: pt.done, emptyFile: pt.empty} {
		path := filepath.Join(dir, name)
		if err := loadSymbols(path, set); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			pt.Close()
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		pt.files[name] = f
	}
	return pt, nil
}

func loadSymbols(path string, into map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sym := strings.TrimSpace(sc.Text()); sym != "" {
			into[sym] = struct{}{}
		}
	}
	return sc.Err()
}

// Pending returns the symbols not yet done or found empty, in input order.
func (p *progressTracker) Pending(symbols []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range symbols {
		_, done := p.done[s]
		_, empty := p.empty[s]
		if !done && !empty {
			out = append(out, s)
		}
	}
	return out
}

// MarkDone records symbols whose bars were written.
func (p *progressTracker) MarkDone(symbols []string) error {
	return p.mark(doneFile, p.done, symbols)
}

// MarkEmpty records symbols that returned no data.
func (p *progressTracker) MarkEmpty(symbols []string) error {
	return p.mark(emptyFile, p.empty, symbols)
}

func (p *progressTracker) mark(name string, set map[string]struct{}, symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := bufio.NewWriter(p.files[name])
	for _, sym := range symbols {
		if _, ok := set[sym]; ok {
			continue
		}
		set[sym] = struct{}{}
		if _, err := w.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing to %s: %w", name, err)
		}
	}
	return w.Flush()
}

// Close closes the progress files.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, f := range p.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.files = nil
	return firstErr
}
