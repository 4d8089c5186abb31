// Package spill writes pages of operator state to temporary files once the
// bytes were reserved from the task's spill budget. Pages are compressed with
// LZ4 block compression.
package spill

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/pipetrack/pkg/safeconv"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// ErrClosed is returned by operations on a closed Spiller.
var ErrClosed = errors.New("spill: spiller closed")

// ErrCorruptPage is returned when a spilled page cannot be decoded.
var ErrCorruptPage = errors.New("spill: corrupt page")

// headerSize is the frame header: codec byte, raw length, payload length.
const headerSize = 9

const (
	codecRaw byte = iota
	codecLZ4
)

// Reserver grants and releases spill bytes.
type Reserver interface {
	ReserveSpill(bytes int64) *task.Future
	FreeSpill(bytes int64) error
}

// Spiller appends pages to one temporary file. It is safe for concurrent use.
type Spiller struct {
	reserver Reserver
	dir      string
	prefix   string

	mu       sync.Mutex
	file     *os.File
	path     string
	reserved int64
	pages    int
	rawBytes int64
	closed   bool
}

// New creates a Spiller that places its file in dir, or the system temp
// directory when dir is empty. The file is created on the first Spill.
func New(reserver Reserver, dir, prefix string) *Spiller {
	if prefix == "" {
		prefix = "pipetrack-spill"
	}

	return &Spiller{reserver: reserver, dir: dir, prefix: prefix}
}

// Spill compresses page, reserves its on-disk size and appends it. It blocks
// until the reservation is granted or ctx is done.
func (s *Spiller) Spill(ctx context.Context, page []byte) (int64, error) {
	frame := encode(page)
	size := int64(len(frame))

	future := s.reserver.ReserveSpill(size)

	waitErr := future.Wait(ctx)
	if waitErr != nil {
		if ctx.Err() != nil && !future.IsDone() {
			go s.releaseLate(future, size)
		}

		return 0, fmt.Errorf("spill: reserve %d bytes: %w", size, waitErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.appendLocked(frame)
	if err != nil {
		return 0, errors.Join(err, s.reserver.FreeSpill(size))
	}

	s.reserved += size
	s.pages++
	s.rawBytes += int64(len(page))

	return size, nil
}

// releaseLate returns a reservation granted after its caller gave up.
func (s *Spiller) releaseLate(future *task.Future, size int64) {
	<-future.Done()

	if future.Err() == nil {
		_ = s.reserver.FreeSpill(size)
	}
}

func (s *Spiller) appendLocked(frame []byte) error {
	if s.closed {
		return ErrClosed
	}

	if s.file == nil {
		f, err := os.CreateTemp(s.dir, s.prefix+"-*.lz4")
		if err != nil {
			return fmt.Errorf("spill: create file: %w", err)
		}

		s.file = f
		s.path = f.Name()
	}

	_, err := s.file.Write(frame)
	if err != nil {
		return fmt.Errorf("spill: write page %d: %w", s.pages, err)
	}

	return nil
}

// Pages returns the number of spilled pages.
func (s *Spiller) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pages
}

// Usage returns the bytes held on disk and the uncompressed bytes they encode.
func (s *Spiller) Usage() (onDisk, raw int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reserved, s.rawBytes
}

// Path returns the spill file path, or empty if nothing was spilled.
func (s *Spiller) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.path
}

// ReadAll returns every spilled page in spill order.
func (s *Spiller) ReadAll() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.file == nil {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("spill: open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	pages := make([][]byte, 0, s.pages)

	for range s.pages {
		page, readErr := decode(r)
		if readErr != nil {
			return nil, fmt.Errorf("spill: page %d: %w", len(pages), readErr)
		}

		pages = append(pages, page)
	}

	return pages, nil
}

// Close removes the spill file and releases its bytes. Safe to call multiple times.
func (s *Spiller) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	var errs []error

	if s.file != nil {
		errs = append(errs, s.file.Close(), os.Remove(s.path))
	}

	if s.reserved > 0 {
		errs = append(errs, s.reserver.FreeSpill(s.reserved))
		s.reserved = 0
	}

	return errors.Join(errs...)
}

// encode frames page, compressing it when that makes it smaller.
func encode(page []byte) []byte {
	bound := lz4.CompressBlockBound(len(page))
	frame := make([]byte, headerSize+bound)

	codec := codecLZ4

	written, err := lz4.CompressBlock(page, frame[headerSize:], nil)
	if err != nil || written == 0 || written >= len(page) {
		codec = codecRaw
		written = copy(frame[headerSize:], page)
	}

	frame[0] = codec
	binary.LittleEndian.PutUint32(frame[1:5], safeconv.MustIntToUint32(len(page)))
	binary.LittleEndian.PutUint32(frame[5:9], safeconv.MustIntToUint32(written))

	return frame[:headerSize+written]
}

func decode(r io.Reader) ([]byte, error) {
	var header [headerSize]byte

	_, err := io.ReadFull(r, header[:])
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	rawLen := binary.LittleEndian.Uint32(header[1:5])
	payloadLen := binary.LittleEndian.Uint32(header[5:9])

	payload := make([]byte, payloadLen)

	_, err = io.ReadFull(r, payload)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	switch header[0] {
	case codecRaw:
		return payload, nil
	case codecLZ4:
		page := make([]byte, rawLen)

		n, uncompressErr := lz4.UncompressBlock(payload, page)
		if uncompressErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPage, uncompressErr)
		}

		if n != int(rawLen) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrCorruptPage, n, rawLen)
		}

		return page, nil
	default:
		return nil, fmt.Errorf("%w: codec %d", ErrCorruptPage, header[0])
	}
}

