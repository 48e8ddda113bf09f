package diskqueue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPayloadVariants(t *testing.T) {
	assert.Equal(t, []byte("hello"), extractPayload(map[string]interface{}{"payload": []byte("hello")}))
	assert.Equal(t, []byte("hello"), extractPayload(map[string]interface{}{"payload": "hello"}))
	assert.Nil(t, extractPayload(map[string]interface{}{}))
}

func TestIsTransientClassifiesKnownConditions(t *testing.T) {
	assert.True(t, isTransient(errors.New("LOADING Redis is loading the dataset in memory")))
	assert.True(t, isTransient(errors.New("dial tcp: connect: connection refused")))
	assert.True(t, isTransient(errors.New("read: connection reset by peer")))
	assert.False(t, isTransient(errors.New("WRONGTYPE Operation against a key")))
	assert.False(t, isTransient(nil))
}
