package testing_support

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountOpenDescriptorsIsStable(t *testing.T) {
	first, err := CountOpenDescriptors()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, first, 3)

	second, err := CountOpenDescriptors()
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCountTracksOpensAndCloses(t *testing.T) {
	before, err := CountOpenDescriptors()
	assert.NoError(t, err)

	f, err := os.Open(os.DevNull)
	assert.NoError(t, err)

	during, err := CountOpenDescriptors()
	assert.NoError(t, err)
	assert.Equal(t, before+1, during)

	assert.NoError(t, f.Close())

	after, err := CountOpenDescriptors()
	assert.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRequireNoDescriptorLeakPassesForBalancedWork(t *testing.T) {
	RequireNoDescriptorLeak(t, func() {
		f, err := os.Open(os.DevNull)
		assert.NoError(t, err)
		assert.NoError(t, f.Close())
	})
}
