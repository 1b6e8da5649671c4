package messaging

import (
	"fmt"
	"strings"
	"time"
)

// Inbound markers, matched by substring.
const (
	markerConsAck  = "cons ACK"
	markerTimeAck  = "time ACK"
	markerStopSelf = "stop self"
)

// FormatConsumption renders a consumption status line. The percentage is
// only present when the node has a budget.
func FormatConsumption(energyWs float64, percent float64, hasBudget bool) string {
	if hasBudget {
		return fmt.Sprintf("cons %.2f %.2f", energyWs, percent)
	}
	return fmt.Sprintf("cons %.2f", energyWs)
}

// FormatTime renders a time sync line carrying whole elapsed seconds.
func FormatTime(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	return fmt.Sprintf("time %d", int64(elapsed/time.Second))
}

// Action is what an inbound line asks the runtime to do.
type Action int

const (
	ActionInfo Action = iota
	ActionAckConsumption
	ActionAckTime
	ActionStopSelf
)

func (a Action) String() string {
	switch a {
	case ActionAckConsumption:
		return "ack_cons"
	case ActionAckTime:
		return "ack_time"
	case ActionStopSelf:
		return "stop_self"
	default:
		return "info"
	}
}

// Classify maps an inbound line to an action. First match wins.
func Classify(line string) Action {
	switch {
	case strings.Contains(line, markerConsAck):
		return ActionAckConsumption
	case strings.Contains(line, markerTimeAck):
		return ActionAckTime
	case strings.Contains(line, markerStopSelf):
		return ActionStopSelf
	default:
		return ActionInfo
	}
}
