package rwdb

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/permit"
	"github.com/matveylogee/OS-HW2-BMW/segment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInitializeDefaults(t *testing.T) {
	db, err := Initialize(Options{})
	require.NoError(t, err)
	defer db.Teardown()

	require.Equal(t, DefaultCapacity, db.Capacity())

	data, err := db.Snapshot(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff([]int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, data); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	readers, writers, err := db.Counts(context.Background())
	require.NoError(t, err)
	require.Zero(t, readers)
	require.Zero(t, writers)
}

func TestInitializeSeed(t *testing.T) {
	seed := []int32{5, 0, -1}
	db, err := Initialize(Options{Capacity: 3, Seed: seed})
	require.NoError(t, err)
	defer db.Teardown()

	data, err := db.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, seed, data)
}

func TestInitializeInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
		kind fault.Kind
	}{
		{name: "negative capacity", opts: Options{Capacity: -1}, kind: fault.Configuration},
		{name: "short seed", opts: Options{Capacity: 4, Seed: []int32{1, 2}}, kind: fault.Configuration},
		{name: "bad name", opts: Options{ShmName: "a/b", ShmDir: t.TempDir()}, kind: fault.ResourceSetup},
		{name: "missing dir", opts: Options{ShmName: "rwdb", ShmDir: "/nonexistent/rwdb-test"}, kind: fault.ResourceSetup},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, err := Initialize(tc.opts)
			require.Error(t, err)
			require.Nil(t, db)
			require.Equal(t, tc.kind, fault.KindOf(err))
		})
	}
}

func TestNamedSegmentLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := segment.Path(dir, "rwdb")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	db, err := Initialize(Options{ShmDir: dir, ShmName: "/rwdb"})
	require.NoError(t, err)
	require.Equal(t, path, db.Segment().Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64((DefaultCapacity+2)*segment.WordSize), info.Size())

	require.NoError(t, db.Teardown())
	require.NoFileExists(t, path)
	require.NoError(t, db.Teardown())
	require.NoFileExists(t, path)
}

func TestTeardownPartial(t *testing.T) {
	var db *Database
	require.NoError(t, db.Teardown())
	require.NoError(t, (&Database{}).Teardown())
	require.NoError(t, (&Database{}).Teardown())
}

func TestClosedDatabase(t *testing.T) {
	db, err := Initialize(Options{Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, db.Teardown())

	err = db.View(context.Background(), func([]int32) { t.Fatal("view after teardown") })
	require.ErrorIs(t, err, permit.ErrClosed)
	require.True(t, fault.Is(err, fault.RuntimeBlocking))

	err = db.Update(context.Background(), func([]int32) { t.Fatal("update after teardown") })
	require.ErrorIs(t, err, permit.ErrClosed)

	_, _, err = db.Counts(context.Background())
	require.ErrorIs(t, err, permit.ErrClosed)
	require.ErrorIs(t, db.EnterRead(context.Background()), permit.ErrClosed)
	require.Equal(t, 2, db.Capacity())
}

func TestRoleString(t *testing.T) {
	require.Equal(t, "reader", Reader.String())
	require.Equal(t, "writer", Writer.String())
	require.Equal(t, "role(7)", Role(7).String())
}
