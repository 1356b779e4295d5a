package parser

import (
	"sort"
	"strings"
)

// TimedEvent is one timestamped combat observation attributed to the guild
// that "owned" it (the killer's side).
type TimedEvent struct {
	T     int
	Owner string
}

// ComputeOccupancy reconstructs how long each guild held the contested node.
// Each interval between consecutive observed events is attributed entirely to
// the guild owning the earlier event. The killer's membership guild is
// preferred; the named guild token on a death line is used only when the
// killer's nickname resolves to no known guild.
func ComputeOccupancy(logText string, m *Membership) (int, map[string]int) {
	var events []TimedEvent
	for _, raw := range strings.Split(logText, "\n") {
		line := ClassifyLine(raw)
		if line.Time == nil {
			continue
		}
		var owner string
		switch line.Kind {
		case LineKill:
			owner, _ = m.GuildOf(line.Actor)
		case LineDeath:
			var ok bool
			owner, ok = m.GuildOf(line.Opponent)
			if !ok {
				owner = line.GuildToken
			}
		default:
			continue
		}
		events = append(events, TimedEvent{T: *line.Time, Owner: owner})
	}

	occupancy := make(map[string]int)
	if len(events) < 2 {
		return 0, occupancy
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].T < events[j].T })

	total := events[len(events)-1].T - events[0].T
	if total < 0 {
		total = 0
	}
	for i := 0; i+1 < len(events); i++ {
		dt := events[i+1].T - events[i].T
		if dt == 0 || events[i].Owner == "" {
			continue
		}
		occupancy[events[i].Owner] += dt
	}
	return total, occupancy
}
