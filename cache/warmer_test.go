package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/cache"
)

type refresher struct {
	calls atomic.Int32
	err   error
}

func (r *refresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestWarmer_StartWarmsImmediately(t *testing.T) {
	target := &refresher{}
	log, _ := test.NewNullLogger()
	w := cache.NewWarmer(target, "@every 1h", log)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Equal(t, int32(1), target.calls.Load())
	assert.Equal(t, 1, w.Runs())
}

func TestWarmer_InvalidSpec(t *testing.T) {
	w := cache.NewWarmer(&refresher{}, "not a cron spec", nil)
	assert.Error(t, w.Start(context.Background()))
}

func TestWarmer_FailureIsLogged(t *testing.T) {
	target := &refresher{err: errors.New("database is locked")}
	log, hook := test.NewNullLogger()
	w := cache.NewWarmer(target, "", log)

	w.Warm(context.Background())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "cache refresh failed", hook.LastEntry().Message)
}

func TestWarmer_SkipsWhenContextDone(t *testing.T) {
	target := &refresher{}
	w := cache.NewWarmer(target, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Warm(ctx)

	assert.Zero(t, target.calls.Load())
}
