package authmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractWebsocketTokenSkipsMarker(t *testing.T) {
	tok, err := ExtractWebsocketToken("afrodite.auth, sometoken123")
	assert.NoError(t, err)
	assert.Equal(t, "sometoken123", tok)
}

func TestExtractWebsocketTokenMissing(t *testing.T) {
	_, err := ExtractWebsocketToken("afrodite.auth")
	assert.Error(t, err)
}

func TestExtractWebsocketTokenEmptyHeader(t *testing.T) {
	_, err := ExtractWebsocketToken("")
	assert.Error(t, err)
}
