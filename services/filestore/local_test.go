package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/document"
)

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Save(ctx, "student/s1/d1.txt", strings.NewReader("report card"), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	rc, err := store.Open(ctx, "student/s1/d1.txt")
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "report card", string(content))

	_, err = store.Save(ctx, "student/s1/d1.txt", strings.NewReader("again"), 100)
	assert.Error(t, err, "keys are never overwritten")

	require.NoError(t, store.Delete(ctx, "student/s1/d1.txt"))
	_, err = store.Open(ctx, "student/s1/d1.txt")
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(store.Delete(ctx, "student/s1/d1.txt")))
}

func TestLocalStore_Save_tooLarge(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "teacher/t1/cv.pdf", strings.NewReader("0123456789"), 5)
	assert.Equal(t, document.ErrTooLarge, err)
	_, err = store.Open(ctx, "teacher/t1/cv.pdf")
	assert.True(t, core.IsNotFound(err), "partial file is removed")
}

func TestLocalStore_invalidKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "../escape", "/etc/passwd", "a/../../escape"} {
		_, err := store.Save(context.Background(), key, strings.NewReader("x"), 5)
		assert.Error(t, err, key)
	}
}
