package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBucketsCenterOnly(t *testing.T) {
	b := ringBuckets(3, 4, 0)
	assert.Equal(t, [][2]int64{{3, 4}}, b)
}

func TestRingBucketsPerimeter(t *testing.T) {
	b := ringBuckets(0, 0, 1)
	// 8 cells surround the center at radius 1.
	assert.Len(t, b, 8)
	for _, cell := range b {
		assert.True(t, cell[0] == -1 || cell[0] == 1 || cell[1] == -1 || cell[1] == 1)
	}
}

func TestGenderMatchesEmptyAcceptsAll(t *testing.T) {
	assert.True(t, genderMatches(GenderWoman, nil))
}

func TestGenderMatchesFiltersStrictly(t *testing.T) {
	assert.True(t, genderMatches(GenderWoman, []Gender{GenderMan, GenderWoman}))
	assert.False(t, genderMatches(GenderNonBin, []Gender{GenderMan, GenderWoman}))
}

func TestSeedFromSessionIDDeterministic(t *testing.T) {
	a := seedFromSessionID("abc123")
	b := seedFromSessionID("abc123")
	c := seedFromSessionID("different")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.GreaterOrEqual(t, a, int64(0))
}

func TestBucketCoordSeparatesDistantPoints(t *testing.T) {
	idx := &Index{bucketKM: 5}
	x1, y1 := idx.bucketCoord(10.0, 10.0)
	x2, y2 := idx.bucketCoord(40.0, 40.0)
	assert.False(t, x1 == x2 && y1 == y2)
}
