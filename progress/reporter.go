package progress

import (
	"time"

	"github.com/handleui/buildlens/events"
)

// Reporter allows external code to receive progress updates while a log is
// being classified. The CLI implements this for watch mode, the service
// could implement it with SSE.
type Reporter interface {
	OnTaskStart(task string)
	OnEvent(e events.Event)
	OnComplete(lines, emitted int, duration time.Duration)
	OnError(err error)
}

// NoOp is a Reporter that does nothing. Use as default when no reporting is needed.
type NoOp struct{}

func (NoOp) OnTaskStart(task string)                               {}
func (NoOp) OnEvent(e events.Event)                                {}
func (NoOp) OnComplete(lines, emitted int, duration time.Duration) {}
func (NoOp) OnError(err error)                                     {}
