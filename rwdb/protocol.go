package rwdb

import (
	"context"
	"errors"

	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/permit"
)

// View runs fn with shared access to the data. Any number of View calls may
// run fn at the same time, never together with an Update.
//
// fn must not retain data and must not modify it.
func (db *Database) View(ctx context.Context, fn func(data []int32)) error {
	if err := db.begin(); err != nil {
		return fault.Runtime("view", "database", err)
	}
	defer db.end()

	if err := db.enterRead(ctx); err != nil {
		return err
	}
	fn(db.data)
	return db.exitRead()
}

// Update runs fn with exclusive access to the data.
//
// Once an Update has registered itself as an outstanding writer, no reader
// that arrives later is admitted until every outstanding writer is done.
func (db *Database) Update(ctx context.Context, fn func(data []int32)) error {
	if err := db.begin(); err != nil {
		return fault.Runtime("update", "database", err)
	}
	defer db.end()

	if err := db.enterWrite(ctx); err != nil {
		return err
	}
	fn(db.data)
	return errors.Join(db.releaseAccess(), db.exitWrite())
}

// EnterRead runs the reader entry protocol. The caller has shared access
// until the matching ExitRead.
func (db *Database) EnterRead(ctx context.Context) error {
	return db.guarded("reader entry", func() error { return db.enterRead(ctx) })
}

// ExitRead runs the reader exit protocol.
func (db *Database) ExitRead() error {
	return db.guarded("reader exit", db.exitRead)
}

// EnterWrite runs the writer entry protocol up to and including the
// acquisition of the access permit.
func (db *Database) EnterWrite(ctx context.Context) error {
	return db.guarded("writer entry", func() error { return db.enterWrite(ctx) })
}

// ReleaseAccess gives up the access permit taken by EnterWrite.
func (db *Database) ReleaseAccess() error {
	return db.guarded("writer release", db.releaseAccess)
}

// ExitWrite runs the writer exit protocol.
func (db *Database) ExitWrite() error {
	return db.guarded("writer exit", db.exitWrite)
}

func (db *Database) guarded(op string, fn func() error) error {
	if err := db.begin(); err != nil {
		return fault.Runtime(op, "database", err)
	}
	defer db.end()
	return fn()
}

func (db *Database) enterRead(ctx context.Context) error {
	if err := db.gate.Acquire(ctx); err != nil {
		return fault.Runtime("reader entry", "", err)
	}
	if err := db.readerMu.Acquire(ctx); err != nil {
		return undo(fault.Runtime("reader entry", "", err), db.gate)
	}

	*db.readers++
	n := int(*db.readers)
	db.obs.ReaderCountChanged(n)
	if n == 1 {
		// первый читатель закрывает доступ писателям
		if err := db.access.Acquire(ctx); err != nil {
			*db.readers--
			db.obs.ReaderCountChanged(n - 1)
			return undo(fault.Runtime("reader entry", "", err), db.readerMu, db.gate)
		}
		db.obs.AccessAcquired(Reader)
	}

	return errors.Join(
		release("reader entry", db.readerMu),
		release("reader entry", db.gate),
	)
}

func (db *Database) exitRead() error {
	if err := db.readerMu.Acquire(context.Background()); err != nil {
		return fault.Runtime("reader exit", "", err)
	}

	*db.readers--
	n := int(*db.readers)
	db.obs.ReaderCountChanged(n)

	var errs []error
	if n == 0 {
		// последний читатель открывает доступ
		db.obs.AccessReleased(Reader)
		errs = append(errs, release("reader exit", db.access))
	}
	errs = append(errs, release("reader exit", db.readerMu))
	return errors.Join(errs...)
}

func (db *Database) enterWrite(ctx context.Context) error {
	if err := db.writerMu.Acquire(ctx); err != nil {
		return fault.Runtime("writer entry", "", err)
	}

	*db.writers++
	n := int(*db.writers)
	db.obs.WriterCountChanged(n)
	if n == 1 {
		// первый писатель закрывает вход новым читателям
		if err := db.gate.Acquire(ctx); err != nil {
			*db.writers--
			db.obs.WriterCountChanged(n - 1)
			return undo(fault.Runtime("writer entry", "", err), db.writerMu)
		}
		db.obs.AdmissionClosed()
	}
	if err := release("writer entry", db.writerMu); err != nil {
		return err
	}

	if err := db.access.Acquire(ctx); err != nil {
		werr := fault.Runtime("writer entry", "", err)
		if xerr := db.exitWrite(); xerr != nil && !errors.Is(xerr, permit.ErrClosed) {
			return errors.Join(werr, xerr)
		}
		return werr
	}
	db.obs.AccessAcquired(Writer)
	return nil
}

func (db *Database) releaseAccess() error {
	db.obs.AccessReleased(Writer)
	return release("writer release", db.access)
}

func (db *Database) exitWrite() error {
	if err := db.writerMu.Acquire(context.Background()); err != nil {
		return fault.Runtime("writer exit", "", err)
	}

	*db.writers--
	n := int(*db.writers)
	db.obs.WriterCountChanged(n)

	var errs []error
	if n == 0 {
		// писателей не осталось, читатели снова проходят
		db.obs.AdmissionOpened()
		errs = append(errs, release("writer exit", db.gate))
	}
	errs = append(errs, release("writer exit", db.writerMu))
	return errors.Join(errs...)
}

// Snapshot returns a copy of the data taken under the reader protocol.
func (db *Database) Snapshot(ctx context.Context) ([]int32, error) {
	var out []int32
	err := db.View(ctx, func(data []int32) {
		out = append([]int32(nil), data...)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Counts returns the reader and writer counters, each read under its own
// mutex.
func (db *Database) Counts(ctx context.Context) (readers, writers int, err error) {
	err = db.guarded("counts", func() error {
		if err := db.readerMu.Acquire(ctx); err != nil {
			return fault.Runtime("counts", "", err)
		}
		readers = int(*db.readers)
		if err := release("counts", db.readerMu); err != nil {
			return err
		}

		if err := db.writerMu.Acquire(ctx); err != nil {
			return fault.Runtime("counts", "", err)
		}
		writers = int(*db.writers)
		return release("counts", db.writerMu)
	})
	return readers, writers, err
}

// AccessStats returns how many times the access permit was acquired and
// released.
func (db *Database) AccessStats() (acquired, released uint64) {
	return db.access.Stats()
}

// HeldPermits returns the names of the permits taken at the moment of the
// call. A database nobody is using holds none.
func (db *Database) HeldPermits() []string {
	var held []string
	for _, p := range []*permit.Permit{db.gate, db.access, db.readerMu, db.writerMu} {
		if !p.Available() {
			held = append(held, p.Name())
		}
	}
	return held
}

func release(op string, p *permit.Permit) error {
	if err := p.Release(); err != nil {
		return fault.Runtime(op, "", err)
	}
	return nil
}

// undo releases permits taken before a failed acquire. Permits closed by a
// concurrent Teardown are ignored.
func undo(err error, held ...*permit.Permit) error {
	errs := []error{err}
	for _, p := range held {
		if rerr := p.Release(); rerr != nil && !errors.Is(rerr, permit.ErrClosed) {
			errs = append(errs, rerr)
		}
	}
	if len(errs) == 1 {
		return err
	}
	return errors.Join(errs...)
}
