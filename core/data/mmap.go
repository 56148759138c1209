package data

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
	"syscall"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

// DataType represents the on-disk element type of a binary dataset.
type DataType int

const (
	Float64 DataType = iota
	Float32
)

func (t DataType) size() int {
	if t == Float32 {
		return 4
	}
	return 8
}

// MemoryMappedDataset serves a row-major little-endian binary file through a
// read-only memory mapping, so datasets larger than memory can be streamed.
type MemoryMappedDataset struct {
	file  *os.File
	mmap  []byte
	rows  int
	cols  int
	dtype DataType
}

// OpenMemoryMappedDataset maps filename, whose size must be a multiple of
// cols elements of dtype.
func OpenMemoryMappedDataset(filename string, cols int, dtype DataType) (*MemoryMappedDataset, error) {
	if cols <= 0 {
		return nil, errors.NewValidationError("cols", "must be positive", cols)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to stat file")
	}

	rowBytes := int64(cols * dtype.size())
	if info.Size() == 0 || info.Size()%rowBytes != 0 {
		_ = file.Close()
		return nil, errors.Newf("file size %d is not a positive multiple of the row size %d", info.Size(), rowBytes)
	}

	mmap, err := syscall.Mmap(int(file.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to mmap")
	}

	return &MemoryMappedDataset{
		file:  file,
		mmap:  mmap,
		rows:  int(info.Size() / rowBytes),
		cols:  cols,
		dtype: dtype,
	}, nil
}

// Len implements Dataset.
func (m *MemoryMappedDataset) Len() int { return m.rows }

// Dim implements Dataset.
func (m *MemoryMappedDataset) Dim() int { return m.cols }

// Row implements Dataset. The mapping is read-only, so concurrent readers
// need no locking.
func (m *MemoryMappedDataset) Row(i int, dst []float64) error {
	if i < 0 || i >= m.rows {
		return errors.NewValueError("MemoryMappedDataset.Row", "row index out of range")
	}
	if len(dst) != m.cols {
		return errors.NewDimensionError("MemoryMappedDataset.Row", m.cols, len(dst), 1)
	}
	size := m.dtype.size()
	offset := i * m.cols * size
	for j := range dst {
		dst[j] = m.readElement(offset + j*size)
	}
	return nil
}

// GetChunk copies rows [startRow, endRow) into a new matrix.
func (m *MemoryMappedDataset) GetChunk(startRow, endRow int) (*mat.Dense, error) {
	if startRow < 0 || endRow > m.rows || startRow >= endRow {
		return nil, errors.Newf("invalid row range: [%d, %d)", startRow, endRow)
	}
	chunk := mat.NewDense(endRow-startRow, m.cols, nil)
	for i := startRow; i < endRow; i++ {
		if err := m.Row(i, chunk.RawRowView(i-startRow)); err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

// Close unmaps and closes the dataset.
func (m *MemoryMappedDataset) Close() error {
	if err := syscall.Munmap(m.mmap); err != nil {
		return errors.Wrap(err, "failed to munmap")
	}
	return m.file.Close()
}

func (m *MemoryMappedDataset) readElement(offset int) float64 {
	if m.dtype == Float32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(m.mmap[offset : offset+4])))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(m.mmap[offset : offset+8]))
}

// WriteBinaryFile writes X row-major in the layout read by
// OpenMemoryMappedDataset.
func WriteBinaryFile(filename string, X mat.Matrix, dtype DataType) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	w := bufio.NewWriter(file)

	rows, cols := X.Dims()
	buf := make([]byte, dtype.size())
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if dtype == Float32 {
				binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(X.At(i, j))))
			} else {
				binary.LittleEndian.PutUint64(buf, math.Float64bits(X.At(i, j)))
			}
			if _, err := w.Write(buf); err != nil {
				_ = file.Close()
				return errors.Wrap(err, "failed to write element")
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "failed to flush")
	}
	return file.Close()
}
