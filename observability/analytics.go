package observability

import (
	"context"
	"fmt"
	"sort"
)

// Tracker records usage events. Implementations may fail; callers go
// through SafeTrack so a broken tracker never surfaces to the user.
type Tracker interface {
	Track(ctx context.Context, event string, props map[string]interface{}) error
}

// TrackerFunc adapts a plain function to Tracker.
type TrackerFunc func(ctx context.Context, event string, props map[string]interface{}) error

func (f TrackerFunc) Track(ctx context.Context, event string, props map[string]interface{}) error {
	return f(ctx, event, props)
}

// SafeTrack forwards the event to t and swallows every failure, including
// panics. A nil tracker is a no-op.
func SafeTrack(ctx context.Context, t Tracker, event string, props map[string]interface{}) {
	if t == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = t.Track(ctx, event, props)
}

// LogTracker writes events to a Logger at debug level.
type LogTracker struct {
	Logger Logger
}

func (t LogTracker) Track(_ context.Context, event string, props map[string]interface{}) error {
	if t.Logger == nil {
		return fmt.Errorf("log tracker: no logger")
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys)+1)
	fields = append(fields, String("event", event))
	for _, k := range keys {
		fields = append(fields, Any(k, props[k]))
	}
	t.Logger.Debug("analytics event", fields...)
	return nil
}
