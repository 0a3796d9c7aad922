package kar_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/vkframe/utility/kar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/mmap"
)

func writeTestArchive(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	data := buildArchive(t, map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	})
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path
}

func TestOpenFile(t *testing.T) {
	r, err := os.Open(writeTestArchive(t))
	require.NoError(t, err)
	defer r.Close()

	ar, err := kar.Open(r)
	require.NoError(t, err)

	f, err := ar.ReadAll("test/test1.txt")
	require.NoError(t, err)
	assert.Equal(t, "this is a test", string(f))
}

func TestOpenmmap(t *testing.T) {
	r, err := mmap.Open(writeTestArchive(t))
	require.NoError(t, err)
	defer r.Close()

	ar, err := kar.Open(r)
	require.NoError(t, err)

	for name, expected := range map[string]string{
		"test/test1.txt": "this is a test",
		"test/test2.txt": "this is another test",
	} {
		f, err := ar.ReadAll(name)
		require.NoError(t, err)
		assert.Equal(t, expected, string(f))
	}
}

func TestReadConcurrently(t *testing.T) {
	r, err := mmap.Open(writeTestArchive(t))
	require.NoError(t, err)
	defer r.Close()

	ar, err := kar.Open(r)
	require.NoError(t, err)

	done := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		go func() {
			f, err := ar.ReadAll("test/test2.txt")
			assert.NoError(t, err)
			done <- f
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, "this is another test", string(<-done))
	}
}
