package fsmlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/statorio/stator/pkg/config"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/logging"
)

// ActorResolver extracts the acting subject from the call context.
// ok is false when no actor is known.
type ActorResolver func(ctx context.Context) (id, kind string, ok bool)

// Logger writes fsm_logs records for successful and failed attempts
// and mirrors them to the log channel.
type Logger struct {
	store Store
	cfg   config.LoggingConfig
	subj  bool
	log   logging.Logger
	actor ActorResolver
	clock func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithActorResolver attributes records to the resolved subject.
func WithActorResolver(resolver ActorResolver) LoggerOption {
	return func(l *Logger) { l.actor = resolver }
}

// WithClock overrides the record timestamp source.
func WithClock(clock func() time.Time) LoggerOption {
	return func(l *Logger) { l.clock = clock }
}

// NewLogger builds a transition logger. cfg gates what gets written;
// the subject is only attributed when verbs.log_user_subject is set
// and a resolver yields one.
func NewLogger(store Store, cfg config.Config, log logging.Logger, opts ...LoggerOption) *Logger {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.Logging.Channel != "" {
		log = log.WithFields(map[string]interface{}{"channel": cfg.Logging.Channel})
	}
	l := &Logger{
		store: store,
		cfg:   cfg.Logging,
		subj:  cfg.Verbs.LogUserSubject,
		log:   log,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogSuccess records a committed transition. The write happens inside
// the caller's transaction scope, so a storage error propagates and
// fails the transition.
func (l *Logger) LogSuccess(ctx context.Context, column string, input *fsm.TransitionInput, durationMs uint64) error {
	if !l.cfg.Enabled {
		return nil
	}

	rec := l.newRecord(ctx, column, input)
	rec.DurationMs = &durationMs

	if err := l.store.Append(ctx, rec); err != nil {
		return err
	}
	l.emit(false, rec)
	return nil
}

// LogFailure records a failed attempt. Storage errors are reported on
// the channel and swallowed: the original failure must win.
func (l *Logger) LogFailure(ctx context.Context, column string, input *fsm.TransitionInput, cause error, durationMs uint64) {
	if !l.cfg.Enabled || !l.cfg.LogFailures {
		return
	}

	rec := l.newRecord(ctx, column, input)
	rec.DurationMs = &durationMs
	details := truncate(cause.Error(), l.cfg.ExceptionCharacterLimit)
	rec.ExceptionDetails = &details

	if err := l.store.Append(ctx, rec); err != nil {
		l.log.Errorf("failed to write failure log for %s[%s].%s: %v", rec.ModelType, rec.ModelID, column, err)
		return
	}
	l.emit(true, rec)
}

func (l *Logger) newRecord(ctx context.Context, column string, input *fsm.TransitionInput) *Record {
	rec := &Record{
		ID:              uuid.NewString(),
		ModelID:         input.Model.Key(),
		ModelType:       input.Model.MorphClass(),
		Column:          column,
		ToState:         string(input.To),
		ContextSnapshot: FilterContext(input.ContextMap(), l.cfg.ExcludedContextProperties),
		HappenedAt:      l.clock(),
	}
	if input.From != nil {
		from := string(*input.From)
		rec.FromState = &from
	}
	if input.Event != "" {
		event := input.Event
		rec.TransitionEvent = &event
	}
	if l.subj && l.actor != nil {
		if id, kind, ok := l.actor(ctx); ok {
			rec.SubjectID = &id
			rec.SubjectType = &kind
		}
	}
	return rec
}

// emit mirrors the record to the log channel, structured or flattened
// per configuration.
func (l *Logger) emit(failed bool, rec *Record) {
	if l.cfg.Structured {
		fields := map[string]interface{}{
			"model":  rec.ModelType,
			"key":    rec.ModelID,
			"column": rec.Column,
			"from":   fromString(rec.FromState),
			"to":     rec.ToState,
		}
		if rec.TransitionEvent != nil {
			fields["event"] = *rec.TransitionEvent
		}
		if rec.DurationMs != nil {
			fields["duration_ms"] = *rec.DurationMs
		}
		entry := l.log.WithFields(fields)
		if failed {
			entry.Error("state transition failed: " + *rec.ExceptionDetails)
			return
		}
		entry.Info("state transition")
		return
	}

	if failed {
		l.log.Errorf("%s[%s].%s: %s -> %s failed: %s",
			rec.ModelType, rec.ModelID, rec.Column, fromString(rec.FromState), rec.ToState, *rec.ExceptionDetails)
		return
	}
	l.log.Infof("%s[%s].%s: %s -> %s",
		rec.ModelType, rec.ModelID, rec.Column, fromString(rec.FromState), rec.ToState)
}

func fromString(from *string) string {
	if from == nil {
		return "null"
	}
	return *from
}

// truncate cuts s to limit characters, not bytes.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
