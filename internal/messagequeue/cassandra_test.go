package messagequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationIDCanonicalizesOrder(t *testing.T) {
	assert.Equal(t, conversationID(5, 9), conversationID(9, 5))
	assert.Equal(t, "dm_5_9", conversationID(5, 9))
	assert.Equal(t, "dm_5_9", conversationID(9, 5))
}
