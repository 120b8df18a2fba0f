package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matveylogee/OS-HW2-BMW/fault"
)

func TestCreateNamed(t *testing.T) {
	dir := t.TempDir()

	s, err := Create(dir, "/rwdb-test", 12)
	require.NoError(t, err)
	require.Equal(t, "/rwdb-test", s.Name())
	require.Equal(t, filepath.Join(dir, "rwdb-test"), s.Path())
	require.Equal(t, 12*WordSize, s.Size())

	words := s.Words()
	require.Len(t, words, 12)
	for _, w := range words {
		require.Zero(t, w)
	}
	words[0], words[11] = 7, -3

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, int64(12*WordSize), info.Size())

	require.NoError(t, s.Close())
	require.NoFileExists(t, s.Path())
	require.Nil(t, s.Words())

	require.NoError(t, s.Close())
}

func TestCreateRemovesStale(t *testing.T) {
	dir := t.TempDir()
	stale := Path(dir, "rwdb")
	require.NoError(t, os.WriteFile(stale, []byte("left from a crashed run"), 0o600))

	s, err := Create(dir, "rwdb", 4)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []int32{0, 0, 0, 0}, s.Words())
}

func TestCreateInvalid(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name  string
		seg   string
		words int
	}{
		{name: "empty name", seg: "", words: 4},
		{name: "slash only", seg: "/", words: 4},
		{name: "nested", seg: "a/b", words: 4},
		{name: "zero size", seg: "rwdb", words: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(dir, tc.seg, tc.words)
			require.Error(t, err)
			require.True(t, fault.Is(err, fault.ResourceSetup))
		})
	}
}

func TestCreateMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	_, err := Create(dir, "rwdb", 4)
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.ResourceSetup))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnonymous(t *testing.T) {
	s, err := Anonymous(3)
	require.NoError(t, err)
	require.Empty(t, s.Name())
	require.Empty(t, s.Path())
	require.Len(t, s.Words(), 3)

	s.Words()[2] = 42
	require.Equal(t, int32(42), s.Words()[2])

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = Anonymous(0)
	require.True(t, fault.Is(err, fault.ResourceSetup))
}

func TestUnlinkMissing(t *testing.T) {
	require.NoError(t, Unlink(t.TempDir(), "nothing-here"))
}

func TestCloseNil(t *testing.T) {
	var s *Segment
	require.NoError(t, s.Close())
}
