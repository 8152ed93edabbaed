package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	n := Continue(5 * time.Second)
	assert.False(t, n.quit)
	assert.NoError(t, n.err)
	assert.Equal(t, 5*time.Second, n.interval)
	assert.Equal(t, "[continue] interval: 5s", n.String())

	n = Break(nil)
	assert.True(t, n.quit)
	assert.NoError(t, n.err)
	assert.Equal(t, "[break] without error", n.String())

	boom := errors.New("boom")
	n = Break(boom)
	assert.True(t, n.quit)
	assert.ErrorIs(t, n.err, boom)
	assert.Contains(t, n.String(), "boom")
}
