package dataset

import (
	"fmt"
	"os"
	"sync"

	"signal-trainer/internal/common"
)

// Writer appends captured samples to a dataset file. Lines end in CRLF, which
// Load accepts because every line is trimmed.
type Writer struct {
	Captured int
	path     string
	mu       sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append writes one sample line, creating the file if needed.
func (w *Writer) Append(features []float64, label float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open dataset for append: %w", common.ErrIO, err)
	}
	defer file.Close()

	if _, err := file.WriteString(FormatSample(features, label) + "\r\n"); err != nil {
		return fmt.Errorf("%w: append sample: %w", common.ErrIO, err)
	}

	w.Captured++
	return nil
}
