package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestComposite_NoChecksIsHealthy(t *testing.T) {
	status := NewComposite("v1").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "v1", status.Version)
}

func TestComposite_AggregatesFailures(t *testing.T) {
	c := NewComposite("")
	c.AddCheck("database", PingCheck(pinger{}))
	c.AddCheck("redis", PingCheck(pinger{err: errors.New("connection refused")}))
	c.AddCheck("cache", func(context.Context) error { return errors.New("down") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: cache, redis", status.Message)
	assert.True(t, status.Checks["database"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}
