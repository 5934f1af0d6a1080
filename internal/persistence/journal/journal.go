package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"colonysim/internal/sim/colony"
)

// Writer appends JSON lines to zstd-compressed files, starting a new file
// every segmentTicks ticks. Files are named after the first tick of their
// segment so that a lexical sort is also tick order.
type Writer struct {
	baseDir      string
	prefix       string
	segmentTicks uint64

	mu     sync.Mutex
	curSeg uint64
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewWriter returns a writer; segmentTicks 0 keeps a single file.
func NewWriter(baseDir, prefix string, segmentTicks uint64) *Writer {
	return &Writer{
		baseDir:      baseDir,
		prefix:       prefix,
		segmentTicks: segmentTicks,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(tick uint64, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.segmentOf(tick)
	if w.w == nil || seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) segmentOf(tick uint64) uint64 {
	if w.segmentTicks == 0 {
		return 0
	}
	return tick - tick%w.segmentTicks
}

func (w *Writer) rotateLocked(seg uint64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForSegment(seg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *Writer) pathForSegment(seg uint64) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%012d.jsonl.zst", w.prefix, seg))
}

// TickJournal writes one compressed JSONL entry per colony tick.
type TickJournal struct{ w *Writer }

func NewTickJournal(runDir string, segmentTicks uint64) *TickJournal {
	return &TickJournal{w: NewWriter(filepath.Join(runDir, "events"), "events", segmentTicks)}
}

func (j *TickJournal) WriteTick(e colony.TickEntry) error { return j.w.Write(e.Tick, e) }
func (j *TickJournal) Close() error                       { return j.w.Close() }
