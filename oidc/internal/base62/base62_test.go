package base62

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandom(t *testing.T) {
	t.Parallel()
	for _, length := range []int{1, 20, 43, 128} {
		s, err := Random(length)
		require.NoError(t, err)
		assert.Len(t, s, length)
		for _, r := range s {
			assert.Contains(t, charset, string(r))
		}
	}
}

func TestRandom_unique(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := Random(20)
		require.NoError(t, err)
		assert.False(seen[s])
		seen[s] = true
	}
}
