package listora

import (
	"context"
	"fmt"
	log "log/slog"
	"math/rand"
	"time"
)

// TimedOut returns an error if the context is done or if the elapsed time since startTime exceeds maxTime.
func TimedOut(ctx context.Context, name string, startTime time.Time, maxTime time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if time.Since(startTime) > maxTime {
		return fmt.Errorf("%s timed out(maxTime=%v)", name, maxTime)
	}
	return nil
}

// RandomSleep sleeps for a random duration between 20ms and 80ms, staggering
// conflicting orchestrations to reduce contention.
func RandomSleep(ctx context.Context) {
	st := time.Duration(rand.Intn(4)+1) * 20 * time.Millisecond
	log.Debug("sleep jitter", "duration", st)
	Sleep(ctx, st)
}

// Sleep blocks for the specified duration or until the context is done, whichever happens first.
func Sleep(ctx context.Context, sleepTime time.Duration) {
	if sleepTime <= 0 {
		return
	}
	sleep, cancel := context.WithTimeout(ctx, sleepTime)
	defer cancel()
	<-sleep.Done()
}
