package docpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	p, err := Document("u1", DailyLogs, "A")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/dailyLogs/A", p)

	u, err := User("u1")
	require.NoError(t, err)
	assert.Equal(t, "users/u1", u)

	c, err := Collection("u1", Cycles)
	require.NoError(t, err)
	assert.Equal(t, "users/u1/cycles", c)
}

func TestDocument_Invalid(t *testing.T) {
	tests := []struct {
		name            string
		user, coll, doc string
	}{
		{"empty user", "", DailyLogs, "A"},
		{"slash in user", "u/1", DailyLogs, "A"},
		{"unknown collection", "u1", "notes", "A"},
		{"empty doc", "u1", Insights, ""},
		{"slash in doc", "u1", Insights, "a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Document(tt.user, tt.coll, tt.doc)
			require.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, s := range []string{"users/u1", "users/u1/cycles", "users/u1/dailyLogs/2025-10-10-x"} {
		p, err := Parse(s)
		require.NoError(t, err, s)
		if p.DocID != "" || p.IsUserRoot() {
			assert.Equal(t, s, p.String())
		}
	}

	p, err := Parse("users/u1/insights/i9")
	require.NoError(t, err)
	assert.Equal(t, Path{UserID: "u1", Collection: Insights, DocID: "i9"}, p)
	assert.False(t, p.IsUserRoot())
}

func TestParse_Rejects(t *testing.T) {
	for _, s := range []string{"", "users", "people/u1", "users//cycles", "users/u1/other/x", "users/u1/cycles/x/y", "users/u1/cycles/"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidPath, s)
	}
}
