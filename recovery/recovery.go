package recovery

import "context"

// Strategy decides what the PDF reader does when it meets malformed input.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Tolerates reports whether the strategy lets the caller continue after err.
// A nil strategy never tolerates.
func Tolerates(ctx context.Context, s Strategy, err error, loc Location) bool {
	if s == nil {
		return false
	}
	return s.OnError(ctx, err, loc) != ActionFail
}
