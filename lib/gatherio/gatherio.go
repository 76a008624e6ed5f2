/*Package gatherio performs a run's disk I/O: collective position dumps,
written by rank 0 only, and the per-species CSV energy log, whose rows
are appended by rank 0 only (spec.md 4.G, 6). OpenCSVLog has no notion
of rank: the driver opens the log on every rank, so every rank creates
(truncates) the file and writes its header line. Grounded on
original_source's save_positions.cpp for the record layout and on
guppy's lib/compress for the zstd buffer-reuse idiom.
*/
package gatherio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/DataDog/zstd"

	"github.com/thenitinshukla/sparc/lib/comm"
	"github.com/thenitinshukla/sparc/lib/particle"
)

// PositionWriter writes zstd-compressed position dumps for one species,
// reusing its scratch buffer across save steps to avoid per-step
// allocation.
type PositionWriter struct {
	raw  []byte
	zbuf []byte
}

// NewPositionWriter returns an empty PositionWriter.
func NewPositionWriter() *PositionWriter { return &PositionWriter{} }

// WritePositions gathers c's positions to rank 0 and, on rank 0,
// compresses and writes them to path as:
//
//	int32 step
//	int32 N_total
//	float64 x[N_total]
//	float64 y[N_total]
//	float64 z[N_total]
//
// On every other rank it performs the collective but no disk I/O.
func (w *PositionWriter) WritePositions(path string, step int, c *particle.Container, cm comm.Comm) error {
	x, err := cm.Gatherv(0, c.X)
	if err != nil {
		return err
	}
	y, err := cm.Gatherv(0, c.Y)
	if err != nil {
		return err
	}
	z, err := cm.Gatherv(0, c.Z)
	if err != nil {
		return err
	}
	if cm.Rank() != 0 {
		return nil
	}

	flatX, flatY, flatZ := flatten(x), flatten(y), flatten(z)
	nTotal := len(flatX)

	w.raw = growBytes(w.raw, 8+24*nTotal)
	buf := w.raw[:0]
	buf = appendInt32(buf, int32(step))
	buf = appendInt32(buf, int32(nTotal))
	buf = appendFloat64s(buf, flatX)
	buf = appendFloat64s(buf, flatY)
	buf = appendFloat64s(buf, flatZ)
	w.raw = buf

	w.zbuf, err = zstd.CompressLevel(w.zbuf, w.raw, 1)
	if err != nil {
		return fmt.Errorf("gatherio: compressing %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gatherio: creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(w.zbuf); err != nil {
		return fmt.Errorf("gatherio: writing %s: %w", path, err)
	}
	return nil
}

func flatten(chunks [][]float64) []float64 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float64, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func appendInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

func appendFloat64s(buf []byte, xs []float64) []byte {
	var b [8]byte
	for _, x := range xs {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(x))
		buf = append(buf, b[:]...)
	}
	return buf
}

func growBytes(x []byte, n int) []byte {
	if cap(x) >= n {
		return x[:n]
	}
	return make([]byte, n)
}

// ReadPositions decompresses and parses a dump written by WritePositions,
// returning the step number and the x, y, z arrays. It exists to make
// round-trip testing of WritePositions possible without re-deriving the
// record layout.
func ReadPositions(path string) (step int, x, y, z []float64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	dec, err := zstd.Decompress(nil, raw)
	if err != nil {
		return 0, nil, nil, nil, fmt.Errorf("gatherio: decompressing %s: %w", path, err)
	}

	r := &byteReader{buf: dec}
	step = int(r.int32())
	n := int(r.int32())
	x = r.float64s(n)
	y = r.float64s(n)
	z = r.float64s(n)
	if r.err != nil {
		return 0, nil, nil, nil, r.err
	}
	return step, x, y, z, nil
}

type byteReader struct {
	buf []byte
	off int
	err error
}

func (r *byteReader) int32() int32 {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return int32(v)
}

func (r *byteReader) float64s(n int) []float64 {
	if r.err != nil || r.off+8*n > len(r.buf) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.off:]))
		r.off += 8
	}
	return out
}

// CSVLog appends one energy/state line per save step to a per-species
// CSV file, writing the header once (spec.md 6).
type CSVLog struct {
	f *os.File
	w *bufio.Writer
}

// OpenCSVLog creates or truncates path and writes the header line.
func OpenCSVLog(path string) (*CSVLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("gatherio: creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("Time(s),   Energy,   MaxR2,  NumParticles,  MPI_Ranks\n"); err != nil {
		f.Close()
		return nil, err
	}
	return &CSVLog{f: f, w: w}, nil
}

// Append writes one row. Callers on rank 0 only; the driver never calls
// this on other ranks.
func (l *CSVLog) Append(timeSec, energy, maxR2 float64, numParticles int64, ranks int) error {
	_, err := fmt.Fprintf(l.w, "%g, %g, %g, %d, %d\n", timeSec, energy, maxR2, numParticles, ranks)
	return err
}

// Close flushes and closes the underlying file.
func (l *CSVLog) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
