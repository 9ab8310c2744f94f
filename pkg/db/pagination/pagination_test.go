package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimReportsNextToken(t *testing.T) {
	page := Pagination{PageSize: 2}
	rows := []int64{10, 11, 12}

	out, info := Trim(rows, page, func(v int64) int64 { return v })
	assert.Equal(t, []int64{10, 11}, out)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(11), cursor.ID)
}

func TestTrimLastPage(t *testing.T) {
	out, info := Trim([]int64{1}, Pagination{PageSize: 5}, func(v int64) int64 { return v })
	assert.Len(t, out, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("!!!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestSizeClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 10_000}.Size())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Size())
}
