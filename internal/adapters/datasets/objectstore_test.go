package datasets

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"micdash/internal/blob"
)

func TestBlobObjectStoreOverS3(t *testing.T) {
	ctx := context.Background()
	s := NewBlobObjectStore(blob.NewMockS3ForTests())

	put, err := s.Put(ctx, "exports/e1/a1.csv", []byte("a,b\n1,2\n"), "text/csv", map[string]string{"rows": "1"})
	require.NoError(t, err)
	assert.EqualValues(t, 8, put.SizeBytes)
	assert.Equal(t, "text/csv", put.ContentType)

	_, err = s.Put(ctx, "exports/e1/a1.csv", []byte("x"), "text/csv", nil)
	assert.ErrorIs(t, err, blob.ErrExists)

	got, rc, err := s.Get(ctx, "exports/e1/a1.csv")
	require.NoError(t, err)
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "a,b\n1,2\n", string(payload))
	assert.Equal(t, "1", got.Metadata["rows"])

	list, err := s.List(ctx, "exports/e1/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exports/e1/a1.csv", list[0].Key)

	existed, err := s.Delete(ctx, "exports/e1/a1.csv")
	require.NoError(t, err)
	assert.True(t, existed)
	_, _, err = s.Get(ctx, "exports/e1/a1.csv")
	assert.True(t, errors.Is(err, ErrArtifactNotFound) && errors.Is(err, blob.ErrNotFound), err)
}
