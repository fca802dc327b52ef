package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInit_WithoutDSN(t *testing.T) {
	flush := Init(Config{}, zap.NewNop())
	assert.NotPanics(t, flush)
}

func TestStartRun_BindsOwnHub(t *testing.T) {
	ctx, run := StartRun(context.Background(), "latest")
	defer run.End()

	hub := sentry.GetHubFromContext(ctx)
	assert.NotNil(t, hub)
	assert.NotSame(t, sentry.CurrentHub(), hub)

	dayCtx, day := StartDay(ctx, time.Date(2019, 12, 7, 0, 0, 0, 0, time.UTC), "logstash-2019.12.07")
	assert.Same(t, hub, sentry.GetHubFromContext(dayCtx))

	assert.NotPanics(t, func() {
		DayCompleted(dayCtx, time.Date(2019, 12, 7, 0, 0, 0, 0, time.UTC), 3)
		day.Fail(errors.New("scroll expired"))
		day.End()
	})
}
