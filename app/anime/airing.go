package anime

import (
	"cmp"
	"encoding/json"
	"slices"
)

type AiringState string

const (
	AiringUnknown AiringState = "unknown"
	AiringPending AiringState = "pending" // added or changed, waiting for a schedule refresh
	AiringKnown   AiringState = "known"
)

// Airing is the current (or next) episode of an anime. Episode and AiringAt
// are only meaningful in the known state.
type Airing struct {
	State    AiringState `json:"state"`
	Episode  int         `json:"episode,omitempty"`
	AiringAt int64       `json:"airingAt,omitempty"`
}

func Unknown() Airing { return Airing{State: AiringUnknown} }

func Pending() Airing { return Airing{State: AiringPending} }

func Known(episode int, airingAt int64) Airing {
	return Airing{State: AiringKnown, Episode: episode, AiringAt: airingAt}
}

func (a Airing) IsKnown() bool {
	return a.State == AiringKnown
}

// Shift moves a known airing time by delta seconds. Other states are returned unchanged.
func (a Airing) Shift(delta int64) Airing {
	if !a.IsKnown() {
		return a
	}
	a.AiringAt += delta
	return a
}

func (a *Airing) UnmarshalJSON(data []byte) error {
	type plain Airing
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.State {
	case AiringKnown, AiringPending:
	default:
		p = plain{State: AiringUnknown}
	}
	*a = Airing(p)
	return nil
}

// ShiftSchedule returns a copy of nodes with every airing time moved by delta seconds.
func ShiftSchedule(nodes []AiringNode, delta int64) []AiringNode {
	if nodes == nil {
		return nil
	}
	shifted := make([]AiringNode, len(nodes))
	for i, n := range nodes {
		shifted[i] = AiringNode{Episode: n.Episode, AiringAt: n.AiringAt + delta}
	}
	return shifted
}

// SortSchedule orders nodes ascending by airing time, then episode.
func SortSchedule(nodes []AiringNode) {
	slices.SortStableFunc(nodes, func(a, b AiringNode) int {
		return cmp.Or(cmp.Compare(a.AiringAt, b.AiringAt), cmp.Compare(a.Episode, b.Episode))
	})
}

// NextAfter returns the first node airing strictly after ts.
func NextAfter(nodes []AiringNode, ts int64) (AiringNode, bool) {
	for _, n := range nodes {
		if n.AiringAt > ts {
			return n, true
		}
	}
	return AiringNode{}, false
}
