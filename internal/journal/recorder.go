package journal

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

// writeTimeout bounds a single journal insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder is an effect.Observer that writes every event to a Repository.
// Write failures are logged and dropped; the registry never sees them.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// OnEffectEvent implements effect.Observer.
func (r *Recorder) OnEffectEvent(ev effect.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	entry := EntryFromEvent(ev)
	if err := r.repo.Create(ctx, &entry); err != nil {
		r.logger.Warn("journal write failed",
			"kind", ev.Kind, "instance_id", ev.InstanceID, "error", err)
	}
}
