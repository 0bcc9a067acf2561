package eventrouter

import (
	"testing"

	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/stretchr/testify/assert"
)

type fakeHub struct {
	delivered []realtime.EventToClient
}

func (f *fakeHub) DeliverLocal(account int64, event realtime.EventToClient) bool {
	f.delivered = append(f.delivered, event)
	return true
}

func (f *fakeHub) Broadcast(event realtime.EventToClient) {
	f.delivered = append(f.delivered, event)
}

func TestNewConsumerBuildsReader(t *testing.T) {
	hub := &fakeHub{}
	c := NewConsumer([]string{"localhost:9092"}, "events", "eventrouter-test", hub)
	assert.NotNil(t, c.reader)
	assert.NoError(t, c.Close())
}
