package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpen_DisabledWithoutAddress(t *testing.T) {
	c, err := Open(context.Background(), "", "", 0, time.Minute)

	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestOpen_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Open(ctx, "127.0.0.1:1", "", 0, time.Minute)

	assert.Error(t, err)
	assert.Nil(t, c)
}
