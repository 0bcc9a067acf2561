package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportedPublicKeyVersion(t *testing.T) {
	assert.True(t, SupportedPublicKeyVersion(1))
	assert.False(t, SupportedPublicKeyVersion(2))
	assert.False(t, SupportedPublicKeyVersion(0))
}
