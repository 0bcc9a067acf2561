package eventrouter

import (
	"testing"

	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/stretchr/testify/assert"
)

func TestBitForKnownKinds(t *testing.T) {
	assert.Equal(t, PendingLikesChanged, bitFor(realtime.EventLikesChanged))
	assert.Equal(t, PendingReceivedBlocksChanged, bitFor(realtime.EventReceivedBlocksChanged))
	assert.Equal(t, PendingNewsChanged, bitFor(realtime.EventNewsChanged))
}

func TestBitForUnknownKind(t *testing.T) {
	assert.Equal(t, uint64(0), bitFor(realtime.EventLatestViewedMessageChanged))
}

func TestNewWithoutBrokersHasNoWriter(t *testing.T) {
	r := New(nil, nil, nil, "events", nil, 0)
	assert.Nil(t, r.writer)
	r.Close()
}

func TestNewWithBrokersBuildsWriter(t *testing.T) {
	r := New(nil, nil, []string{"localhost:9092"}, "events", nil, 0)
	assert.NotNil(t, r.writer)
	r.Close()
}
