// Package export writes visualization frames: one zstd-compressed JSONL
// file per run, a header line followed by one line per exported step.
// Each cell carries its type tag as the coloring attribute.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/space"
)

// Header is the first line of a frame file.
type Header struct {
	Version        int          `json:"version"`
	RunID          string       `json:"run_id"`
	Seed           int64        `json:"seed"`
	Bounds         space.Bounds `json:"bounds"`
	ExportInterval uint64       `json:"export_interval"`
	Attributes     []string     `json:"attributes"`
}

// Frame is the population state at one step.
type Frame struct {
	Tick  uint64      `json:"tick"`
	Cells []CellPoint `json:"cells"`
}

// CellPoint is the exported view of one cell.
type CellPoint struct {
	Position space.Vec3 `json:"position"`
	Diameter float64    `json:"diameter"`
	CellType int        `json:"cell_type"`
}

// FrameWriter appends frames to a compressed file.
type FrameWriter struct {
	path string

	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	frames int
}

// NewFrameWriter creates the file at path and writes the header.
func NewFrameWriter(path string, h Header) (*FrameWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	fw := &FrameWriter{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 256*1024),
	}
	if h.Version == 0 {
		h.Version = 1
	}
	if len(h.Attributes) == 0 {
		h.Attributes = []string{"cell_type"}
	}
	if err := fw.writeLine(h); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return fw, nil
}

// Path returns the file being written.
func (fw *FrameWriter) Path() string {
	return fw.path
}

// Frames returns how many frames have been written.
func (fw *FrameWriter) Frames() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.frames
}

// NewFrame converts a population snapshot into its exported form.
func NewFrame(tick uint64, snapshot []cells.Cell) Frame {
	frame := Frame{Tick: tick, Cells: make([]CellPoint, len(snapshot))}
	for i, c := range snapshot {
		frame.Cells[i] = CellPoint{
			Position: c.Position,
			Diameter: c.Diameter,
			CellType: int(c.Type),
		}
	}
	return frame
}

// WriteFrame appends the state of snapshot at tick.
func (fw *FrameWriter) WriteFrame(tick uint64, snapshot []cells.Cell) error {
	frame := NewFrame(tick, snapshot)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.writeLine(frame); err != nil {
		return err
	}
	fw.frames++
	return nil
}

func (fw *FrameWriter) writeLine(v any) error {
	if fw.w == nil {
		return errors.New("frame writer closed")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(b); err != nil {
		return err
	}
	return fw.w.WriteByte('\n')
}

// Close flushes and closes the file.
func (fw *FrameWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.w == nil {
		return nil
	}
	var errs []error
	errs = append(errs, fw.w.Flush())
	errs = append(errs, fw.enc.Close())
	errs = append(errs, fw.f.Close())
	fw.w, fw.enc, fw.f = nil, nil, nil
	return errors.Join(errs...)
}

// ReadFrames decodes a frame file written by FrameWriter.
func ReadFrames(path string) (Header, []Frame, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024))
	if err := jd.Decode(&h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	var frames []Frame
	for {
		var fr Frame
		if err := jd.Decode(&fr); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return h, frames, fmt.Errorf("decode frame %d: %w", len(frames), err)
		}
		frames = append(frames, fr)
	}
	return h, frames, nil
}
