package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-live/services/logger"
)

type fakeExpirer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeExpirer) ExpireLapsed(_ context.Context, _ time.Time) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func Test_sweepOnce(t *testing.T) {
	logger := logsvc.NewNopLogger()

	tests := []struct {
		name string
		svc  *fakeExpirer
		want int
	}{
		{name: "nothing lapsed", svc: &fakeExpirer{}, want: 0},
		{name: "some lapsed", svc: &fakeExpirer{n: 3}, want: 3},
		{name: "store down", svc: &fakeExpirer{err: errors.New("connection refused")}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sweepOnce(context.Background(), tt.svc, time.Now(), logger)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, int32(1), tt.svc.calls.Load())
		})
	}
}

func Test_sweepExpired(t *testing.T) {
	logger := logsvc.NewNopLogger()

	t.Run("stops with the context", func(t *testing.T) {
		svc := new(fakeExpirer)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sweepExpired(ctx, svc, 5*time.Millisecond, logger)
			close(done)
		}()

		assert.Eventually(t, func() bool { return svc.calls.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		svc := new(fakeExpirer)
		sweepExpired(context.Background(), svc, 0, logger)
		assert.Equal(t, int32(0), svc.calls.Load())
	})
}
