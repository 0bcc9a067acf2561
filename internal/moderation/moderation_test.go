package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToItemMapsClaimedBy(t *testing.T) {
	claimed := int64(42)
	doc := &itemDoc{
		QueueKind: string(QueueInitialMedia), SubjectAccount: 7, State: string(StateClaimedByModerator),
		ClaimedBy: &claimed,
	}
	item := toItem(doc)
	assert.Equal(t, QueueInitialMedia, item.QueueKind)
	assert.NotNil(t, item.ClaimedBy)
	assert.EqualValues(t, 42, *item.ClaimedBy)
}

func TestToItemNilClaimedBy(t *testing.T) {
	doc := &itemDoc{QueueKind: string(QueueProfileText), SubjectAccount: 3, State: string(StateWaiting)}
	item := toItem(doc)
	assert.Nil(t, item.ClaimedBy)
}
