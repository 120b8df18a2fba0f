// Package rwdb implements a fixed size integer database shared by concurrent
// readers and writers under a writer-preference readers–writers protocol.
//
// The data array and the two admission counters live in one shared memory
// segment:
//
//	[ data[0] ... data[capacity-1] | readerCount | writerCount ]
//
// The four permits guarding them are owned by the Database and live exactly as
// long as the segment does.
package rwdb

import (
	"fmt"
	"sync"

	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/permit"
	"github.com/matveylogee/OS-HW2-BMW/segment"
)

// DefaultCapacity is used when Options.Capacity is zero.
const DefaultCapacity = 10

// Role is the kind of access a caller of the protocol asks for.
type Role int

const (
	// Reader shares access with other readers.
	Reader Role = iota
	// Writer has exclusive access.
	Writer
)

func (r Role) String() string {
	switch r {
	case Reader:
		return "reader"
	case Writer:
		return "writer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Observer is notified about every counter transition and every change of the
// access permit holder. Calls are made while the corresponding mutex or permit
// is held, so the order of calls is the order of transitions.
type Observer interface {
	ReaderCountChanged(n int)
	WriterCountChanged(n int)
	AccessAcquired(holder Role)
	AccessReleased(holder Role)
	// AdmissionClosed and AdmissionOpened report the first outstanding
	// writer taking the gate and the last one giving it back.
	AdmissionClosed()
	AdmissionOpened()
}

type nopObserver struct{}

func (nopObserver) ReaderCountChanged(int) {}
func (nopObserver) WriterCountChanged(int) {}
func (nopObserver) AccessAcquired(Role)    {}
func (nopObserver) AccessReleased(Role)    {}
func (nopObserver) AdmissionClosed()       {}
func (nopObserver) AdmissionOpened()       {}

// Options configure Initialize.
type Options struct {
	// Capacity is the number of data elements, DefaultCapacity if zero.
	Capacity int
	// Seed holds the initial data. If nil, data[i] = i + 1.
	Seed []int32
	// ShmName names the segment. Empty means an anonymous mapping.
	ShmName string
	// ShmDir is the directory named segments are created in.
	ShmDir string
	// Observer receives protocol transitions. May be nil.
	Observer Observer
}

// Database is the shared database.
type Database struct {
	seg      *segment.Segment
	capacity int
	data     []int32
	readers  *int32
	writers  *int32

	gate     *permit.Permit
	access   *permit.Permit
	readerMu *permit.Permit
	writerMu *permit.Permit

	obs Observer

	// life охраняет closed и sections
	life     sync.Mutex
	drained  *sync.Cond
	closed   bool
	sections int
}

// Initialize creates the segment, seeds the data, zeroes the counters and
// creates the permits. If anything fails, whatever was created is released.
func Initialize(opts Options) (*Database, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 0 {
		return nil, fault.Configf("initialize", "invalid capacity %d", capacity)
	}
	if opts.Seed != nil && len(opts.Seed) != capacity {
		return nil, fault.Configf("initialize", "seed has %d values, capacity is %d", len(opts.Seed), capacity)
	}

	db := &Database{capacity: capacity, obs: opts.Observer}
	if db.obs == nil {
		db.obs = nopObserver{}
	}
	db.drained = sync.NewCond(&db.life)

	var err error
	if opts.ShmName == "" {
		db.seg, err = segment.Anonymous(capacity + 2)
	} else {
		db.seg, err = segment.Create(opts.ShmDir, opts.ShmName, capacity+2)
	}
	if err != nil {
		_ = db.Teardown()
		return nil, err
	}

	words := db.seg.Words()
	db.data = words[:capacity:capacity]
	db.readers = &words[capacity]
	db.writers = &words[capacity+1]

	*db.readers = 0
	*db.writers = 0
	for i := range db.data {
		if opts.Seed != nil {
			db.data[i] = opts.Seed[i]
		} else {
			db.data[i] = int32(i + 1)
		}
	}

	db.gate = permit.New("gate")
	db.access = permit.New("access")
	db.readerMu = permit.New("reader-count")
	db.writerMu = permit.New("writer-count")
	return db, nil
}

// Capacity returns the number of data elements.
func (db *Database) Capacity() int {
	return db.capacity
}

// Segment returns the segment the database lives in.
func (db *Database) Segment() *segment.Segment {
	return db.seg
}

// Teardown releases the database: new protocol calls fail with
// permit.ErrClosed, blocked ones wake up, and once every call in flight has
// left the segment it is unmapped and its name unlinked.
//
// Teardown may be called more than once, concurrently with protocol calls and
// on a nil or partially initialized Database.
func (db *Database) Teardown() error {
	if db == nil {
		return nil
	}

	db.life.Lock()
	if db.closed {
		db.life.Unlock()
		return nil
	}
	db.closed = true

	db.gate.Close()
	db.access.Close()
	db.readerMu.Close()
	db.writerMu.Close()

	for db.sections > 0 {
		db.drained.Wait()
	}
	db.life.Unlock()

	db.data = nil
	db.readers = nil
	db.writers = nil
	return db.seg.Close()
}

// begin registers a protocol call that is about to touch the segment.
func (db *Database) begin() error {
	db.life.Lock()
	defer db.life.Unlock()
	if db.closed {
		return permit.ErrClosed
	}
	db.sections++
	return nil
}

func (db *Database) end() {
	db.life.Lock()
	db.sections--
	if db.sections == 0 {
		db.drained.Broadcast()
	}
	db.life.Unlock()
}
