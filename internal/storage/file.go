package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"otago-pg/pkg/types"
)

// FileSink appends one JSON object per outcome to a file.
type FileSink struct {
	mu           sync.Mutex
	w            *bufio.Writer
	closer       io.Closer
	includeFails bool
}

type fileLine struct {
	RunID     string              `json:"run_id"`
	ScrapedAt string              `json:"scraped_at"`
	Outcome   types.ScrapeOutcome `json:"outcome"`
}

// NewFileSink opens path for appending, creating parent directories.
func NewFileSink(path string, includeFails bool) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return newFileSink(fh, fh, includeFails), nil
}

func newFileSink(w io.Writer, closer io.Closer, includeFails bool) *FileSink {
	return &FileSink{w: bufio.NewWriter(w), closer: closer, includeFails: includeFails}
}

// Save writes the outcome. Failed outcomes are written only when the sink
// was built to include them.
func (f *FileSink) Save(_ context.Context, entry Entry) error {
	if entry.Outcome.Status == types.OutcomeFailed && !f.includeFails {
		return nil
	}
	line, err := json.Marshal(fileLine{
		RunID:     entry.RunID,
		ScrapedAt: entry.ScrapedAt.UTC().Format(time.RFC3339),
		Outcome:   entry.Outcome,
	})
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return f.w.Flush()
}

// Close flushes and closes the file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.w.Flush(); err != nil {
		return err
	}
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
