// Package segment provides the shared memory region the database lives in.
//
// A segment is a run of int32 words backed by a MAP_SHARED mapping. Named
// segments are files in a shm directory (/dev/shm on Linux, the same place
// shm_open puts them) and must be unlinked by Close; anonymous segments have
// no name at all.
package segment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/matveylogee/OS-HW2-BMW/fault"
)

// WordSize is the size of one segment word in bytes.
const WordSize = int(unsafe.Sizeof(int32(0)))

// DefaultDir is where named segments are created when no directory is given.
const DefaultDir = "/dev/shm"

// Segment is a mapped shared memory region.
type Segment struct {
	name  string
	path  string
	file  *os.File
	mem   []byte
	words []int32
}

// Path returns the file a named segment is backed by.
func Path(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

// Unlink removes a named segment left behind by a previous run.
// A missing segment is not an error.
func Unlink(dir, name string) error {
	path := Path(dir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fault.Setup("unlink segment", path, err)
	}
	return nil
}

// Create creates and maps a named segment of the given number of words.
// A stale segment with the same name is removed first.
func Create(dir, name string, words int) (*Segment, error) {
	if err := validate(name, words); err != nil {
		return nil, err
	}
	if err := Unlink(dir, name); err != nil {
		return nil, err
	}

	path := Path(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fault.Setup("create segment", path, err)
	}
	s := &Segment{name: name, path: path, file: f}

	size := words * WordSize
	if err := f.Truncate(int64(size)); err != nil {
		_ = s.Close()
		return nil, fault.Setup("truncate segment", path, err)
	}

	mem, err := mapFile(f, size)
	if err != nil {
		_ = s.Close()
		return nil, fault.Setup("mmap segment", path, err)
	}
	s.attach(mem)
	return s, nil
}

// Anonymous maps an unnamed shared segment of the given number of words.
func Anonymous(words int) (*Segment, error) {
	if words <= 0 {
		return nil, fault.Setup("map segment", "anonymous", fmt.Errorf("invalid size %d words", words))
	}
	mem, err := mapAnonymous(words * WordSize)
	if err != nil {
		return nil, fault.Setup("mmap segment", "anonymous", err)
	}
	s := &Segment{}
	s.attach(mem)
	return s, nil
}

func validate(name string, words int) error {
	trimmed := strings.TrimPrefix(name, "/")
	if trimmed == "" || strings.ContainsRune(trimmed, '/') {
		return fault.Setup("create segment", name, fmt.Errorf("invalid segment name %q", name))
	}
	if words <= 0 {
		return fault.Setup("create segment", name, fmt.Errorf("invalid size %d words", words))
	}
	return nil
}

func (s *Segment) attach(mem []byte) {
	s.mem = mem
	s.words = unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(mem))), len(mem)/WordSize)
}

// Words returns the mapped words. The slice is invalid after Close.
func (s *Segment) Words() []int32 {
	return s.words
}

// Name returns the segment name, empty for anonymous segments.
func (s *Segment) Name() string {
	return s.name
}

// Path returns the backing file, empty for anonymous segments.
func (s *Segment) Path() string {
	return s.path
}

// Size returns the mapped size in bytes.
func (s *Segment) Size() int {
	return len(s.mem)
}

// Close unmaps the segment, closes its file and unlinks its name.
// Close may be called more than once and on a nil or partially created Segment.
func (s *Segment) Close() error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.mem != nil {
		if err := unmap(s.mem); err != nil {
			errs = append(errs, fault.Setup("munmap segment", s.label(), err))
		}
		s.mem = nil
		s.words = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fault.Setup("close segment", s.path, err))
		}
		s.file = nil
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fault.Setup("unlink segment", s.path, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Segment) label() string {
	if s.path == "" {
		return "anonymous"
	}
	return s.path
}
