package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailmate/chat-service/internal/domain"
)

func TestCursor_RoundTrip(t *testing.T) {
	req := require.New(t)
	in := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC), ID: "6f1c3c1e-4b9a-4a53-9d4b-0a0f6e1d2c3b"}

	s, err := EncodeCursor(in)
	req.NoError(err)
	out, err := DecodeCursor(s)
	req.NoError(err)
	req.True(in.CreatedAt.Equal(out.CreatedAt))
	req.Equal(in.ID, out.ID)
}

func TestDecodeCursor_EmptyMeansFirstPage(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, s := range []string{"%%%", "bm90LWpzb24", "e30"} { // bad base64, not json, {}
		_, err := DecodeCursor(s)
		require.ErrorIs(t, err, domain.ErrInvalidCursor, s)
	}
}
