package sentryutil

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/refis/simulator/internal/config"
)

// Init configures the global Sentry client. An empty DSN leaves the client
// disabled and every capture becomes a no-op.
func Init(cfg *config.Config) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          cfg.SentryRelease,
		TracesSampleRate: 0.2,
		EnableTracing:    cfg.SentryDSN != "",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		log.Printf("[sentry] init (non-blocking): %s", err)
	}
	if cfg.SentryDSN == "" {
		log.Println("[sentry] SENTRY_DSN empty, error tracking disabled")
	} else {
		log.Println("[sentry] initialized")
	}
}

func Flush() { sentry.Flush(2 * time.Second) }

func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CaptureWarning records a non-fatal condition worth looking at, such as a
// rejected import file.
func CaptureWarning(msg string, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(msg)
	})
}
