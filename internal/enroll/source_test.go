package enroll

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSourceList(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"charlie", "alice", "bob", ".trash"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0o755))
	}
	writeFile(t, filepath.Join(root, "README.txt"), "not a folder")

	folders, err := NewDirSource(root, "", "").List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, folders)
}

func TestDirSourceListMissingRoot(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "nope"), "", "").List()
	assert.Error(t, err)
}

func TestDirSourceReadProfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", DefaultProfileFile), `{"name":"Alice","team":"blue"}`)
	writeFile(t, filepath.Join(root, "noname", DefaultProfileFile), `{"team":"red"}`)
	writeFile(t, filepath.Join(root, "garbage", DefaultProfileFile), `name: Alice`)
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	src := NewDirSource(root, "", "")

	p, err := src.ReadProfile("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name())
	assert.Equal(t, []string{"name", "team"}, p.Keys())

	for _, folder := range []string{"noname", "garbage", "empty", "absent"} {
		t.Run(folder, func(t *testing.T) {
			_, err := src.ReadProfile(folder)
			assert.ErrorIs(t, err, ErrMalformedSource)
		})
	}
}

func TestDirSourceReadImage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", "portrait.png"), "png-bytes")
	writeFile(t, filepath.Join(root, "blank", "portrait.png"), "")

	src := NewDirSource(root, "profile.json", "portrait.png")

	data, err := src.ReadImage("alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = src.ReadImage("blank")
	assert.ErrorIs(t, err, ErrMalformedSource)
	_, err = src.ReadImage("absent")
	assert.ErrorIs(t, err, ErrMalformedSource)
}
