package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestScheduler_Add_InvalidSpec(t *testing.T) {
	s := New(testLogger())

	err := s.Add(context.Background(), "every day", func(context.Context) error { return nil })

	assert.ErrorContains(t, err, `invalid cron schedule "every day"`)
}

func TestScheduler_RunsJob(t *testing.T) {
	s := New(testLogger())
	ran := make(chan struct{}, 1)

	require.NoError(t, s.Add(context.Background(), "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.IsRunning())
}

func TestScheduler_StopWithoutRun(t *testing.T) {
	s := New(testLogger())

	s.Stop()

	assert.False(t, s.IsRunning())
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{logger: zerolog.New(&buf)}

	l.Error(errors.New("boom"), "job panicked", "entry", 3)

	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), `"entry":3`)
	assert.Contains(t, buf.String(), `"message":"job panicked"`)
}
