package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerScheduler_RunsImmediately(t *testing.T) {
	s := NewTickerScheduler(time.Hour)
	ran := make(chan time.Time, 1)

	require.NoError(t, s.Start(context.Background(), func(at time.Time) { ran <- at }))
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
}

func TestTickerScheduler_StopIsIdempotent(t *testing.T) {
	s := NewTickerScheduler(time.Hour)
	require.NoError(t, s.Start(context.Background(), func(time.Time) {}))

	ctx := context.Background()
	assert.NoError(t, s.Stop(ctx))
	assert.NoError(t, s.Stop(ctx))
}

func TestTickerScheduler_StartStopStart(t *testing.T) {
	s := NewTickerScheduler(time.Hour)
	ctx := context.Background()
	ran := make(chan struct{}, 2)
	job := func(time.Time) { ran <- struct{}{} }

	require.NoError(t, s.Start(ctx, job))
	<-ran
	require.NoError(t, s.Stop(ctx))

	// the scheduler is reusable after Stop
	require.NoError(t, s.Start(ctx, job))
	defer s.Stop(ctx)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run after restart")
	}
}

func TestTickerScheduler_SecondStartIgnored(t *testing.T) {
	s := NewTickerScheduler(time.Hour)
	ctx := context.Background()
	first := make(chan struct{}, 1)

	require.NoError(t, s.Start(ctx, func(time.Time) { first <- struct{}{} }))
	defer s.Stop(ctx)
	<-first

	require.NoError(t, s.Start(ctx, func(time.Time) {
		t.Error("second Start must not spawn another loop")
	}))
	time.Sleep(20 * time.Millisecond)
}
