package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	base := t.TempDir()
	l, err := NewLocalStorage(&LocalConfig{BasePath: base})
	require.NoError(t, err)
	return l, base
}

func TestLocalStoreRetrieveRoundTrip(t *testing.T) {
	l, base := newLocal(t)
	ctx := context.Background()

	meta := Metadata{
		Name:       "immich_backup_20240101_120000.tar.gz",
		Size:       7,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		AppVersion: "v1.119.0",
	}
	err := l.Store(ctx, &Archive{
		Name:       meta.Name,
		Metadata:   meta,
		DataReader: strings.NewReader("payload"),
	})
	require.NoError(t, err)

	// No partial file left behind.
	_, err = os.Stat(filepath.Join(base, meta.Name+".partial"))
	assert.True(t, os.IsNotExist(err))

	got, err := l.Retrieve(ctx, meta.Name)
	require.NoError(t, err)
	defer got.DataReader.(io.Closer).Close()

	data, err := io.ReadAll(got.DataReader)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, meta.AppVersion, got.Metadata.AppVersion)
}

func TestLocalRetrieveMissing(t *testing.T) {
	l, _ := newLocal(t)
	_, err := l.Retrieve(context.Background(), "nope.tar.gz")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestLocalListAndExists(t *testing.T) {
	l, _ := newLocal(t)
	ctx := context.Background()

	for _, name := range []string{"immich_backup_a.tar.gz", "immich_backup_b.tar.gz"} {
		require.NoError(t, l.Store(ctx, &Archive{
			Name:       name,
			Metadata:   Metadata{Name: name, CreatedAt: time.Now()},
			DataReader: strings.NewReader("x"),
		}))
	}

	archives, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, archives, 2)

	ok, err := l.Exists(ctx, "immich_backup_a.tar.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Exists(ctx, "immich_backup_c.tar.gz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalDelete(t *testing.T) {
	l, base := newLocal(t)
	ctx := context.Background()

	name := "immich_backup_x.tar.gz"
	require.NoError(t, l.Store(ctx, &Archive{
		Name:       name,
		Metadata:   Metadata{Name: name},
		DataReader: strings.NewReader("x"),
	}))

	require.NoError(t, l.Delete(ctx, name))

	_, err := os.Stat(filepath.Join(base, name))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(base, "immich_backup_x.json"))
	assert.True(t, os.IsNotExist(err))

	// Deleting an absent archive is not an error.
	assert.NoError(t, l.Delete(ctx, name))
}
