package interaction

import (
	"testing"

	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestOrderPair(t *testing.T) {
	a, b := orderPair(identity.InternalAccountID(5), identity.InternalAccountID(2))
	assert.Equal(t, identity.InternalAccountID(2), a)
	assert.Equal(t, identity.InternalAccountID(5), b)

	a, b = orderPair(identity.InternalAccountID(2), identity.InternalAccountID(5))
	assert.Equal(t, identity.InternalAccountID(2), a)
	assert.Equal(t, identity.InternalAccountID(5), b)
}

func TestNewSessionIDUnique(t *testing.T) {
	first, err := newSessionID()
	assert.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := newSessionID()
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	assert.NotNil(t, p)
	assert.True(t, *p)
}
