package parser

import (
	"regexp"
	"strconv"
	"strings"

	"nodewar-tracker/internal/domain"
)

type LineKind int

const (
	LineOther LineKind = iota
	LineKill
	LineDeath
)

// Line is one classified log line. For kill lines Actor is the killer and
// Opponent the victim; for death lines Actor is the victim and Opponent the
// killer. GuildToken is the trailing "from <Guild>" capture: the victim's
// guild on kill lines, the killer's claimed guild on death lines.
type Line struct {
	Kind       LineKind
	Actor      string
	Opponent   string
	GuildToken string
	Time       *int
}

var (
	killLineRe  = regexp.MustCompile(`\] ([A-Za-z0-9_\-]+) has killed ([A-Za-z0-9_\-]+) from ([A-Za-z0-9 _\-]+?)\s*$`)
	deathLineRe = regexp.MustCompile(`\] ([A-Za-z0-9_\-]+) died to ([A-Za-z0-9_\-]+) from ([A-Za-z0-9 _\-]+?)\s*$`)
	clockRe     = regexp.MustCompile(`^\[(\d{1,2}):(\d{2}):(\d{2})\]`)
	tickRe      = regexp.MustCompile(`(?:Next war tick:|Node Time:|PID:)\s*(\d+)`)
)

// ClassifyLine matches the two mutually exclusive combat patterns; anything
// else is LineOther.
func ClassifyLine(line string) Line {
	l := Line{Kind: LineOther, Time: ParseClock(line)}
	if match := killLineRe.FindStringSubmatch(line); match != nil {
		l.Kind = LineKill
		l.Actor, l.Opponent, l.GuildToken = match[1], match[2], match[3]
		return l
	}
	if match := deathLineRe.FindStringSubmatch(line); match != nil {
		l.Kind = LineDeath
		l.Actor, l.Opponent, l.GuildToken = match[1], match[2], match[3]
	}
	return l
}

// ParseClock converts a leading [HH:MM:SS] prefix to seconds since midnight.
func ParseClock(line string) *int {
	match := clockRe.FindStringSubmatch(line)
	if match == nil {
		return nil
	}
	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	s, _ := strconv.Atoi(match[3])
	total := h*3600 + m*60 + s
	return &total
}

// ParseTick extracts a war tick marker value, if the line carries one.
func ParseTick(line string) *int {
	match := tickRe.FindStringSubmatch(line)
	if match == nil {
		return nil
	}
	v, _ := strconv.Atoi(match[1])
	return &v
}

// Extraction is the reducer output of a single pass over one log.
type Extraction struct {
	Stats         map[string]map[string]*domain.PlayerCombatStat
	KillsByGuild  map[string]int
	DeathsByGuild map[string]int
	KillsMatrix   map[string]map[string]int
}

type Extractor struct {
	rivalGuild string
}

func NewExtractor(rivalGuild string) *Extractor {
	return &Extractor{rivalGuild: rivalGuild}
}

// Extract walks the log once, resolving each participant's guild through the
// membership map and accumulating counters, matrices and timeline events.
// A nickname with no resolvable guild is skipped, never an error.
//
// On death lines the trailing guild token is taken as the killer's guild even
// when the killer nickname's own membership would disagree; the written log
// wins that tie.
func (e *Extractor) Extract(logText string, m *Membership) *Extraction {
	out := &Extraction{
		Stats:         make(map[string]map[string]*domain.PlayerCombatStat),
		KillsByGuild:  make(map[string]int),
		DeathsByGuild: make(map[string]int),
		KillsMatrix:   make(map[string]map[string]int),
	}

	var lastTick *int
	for _, raw := range strings.Split(logText, "\n") {
		if tick := ParseTick(raw); tick != nil {
			lastTick = tick
		}

		line := ClassifyLine(raw)
		switch line.Kind {
		case LineKill:
			killerGuild, ok := m.GuildOf(line.Actor)
			victimGuild := line.GuildToken
			if !ok || victimGuild == "" {
				continue
			}
			e.record(out, killerGuild, line.Actor, victimGuild, line.Opponent, line.Time, lastTick)

		case LineDeath:
			victimGuild, ok := m.GuildOf(line.Actor)
			killerGuild := line.GuildToken
			if !ok || killerGuild == "" {
				continue
			}
			e.record(out, killerGuild, line.Opponent, victimGuild, line.Actor, line.Time, lastTick)
		}
	}
	return out
}

func (e *Extractor) record(out *Extraction, killerGuild, killer, victimGuild, victim string, t, tick *int) {
	vsRival := strings.EqualFold(victimGuild, e.rivalGuild)
	killerStat := e.stat(out, killerGuild, killer)
	killerStat.Kills++
	if vsRival {
		killerStat.KillsVsRival++
	} else {
		killerStat.KillsVsOthers++
	}
	killerStat.Events = append(killerStat.Events, domain.TimelineEvent{
		Time:          t,
		Tick:          tick,
		Type:          domain.EventKill,
		OpponentNick:  victim,
		OpponentGuild: victimGuild,
	})

	deathVsRival := strings.EqualFold(killerGuild, e.rivalGuild)
	victimStat := e.stat(out, victimGuild, victim)
	victimStat.Deaths++
	if deathVsRival {
		victimStat.DeathsVsRival++
	} else {
		victimStat.DeathsVsOthers++
	}
	victimStat.Events = append(victimStat.Events, domain.TimelineEvent{
		Time:          t,
		Tick:          tick,
		Type:          domain.EventDeath,
		OpponentNick:  killer,
		OpponentGuild: killerGuild,
	})

	out.KillsByGuild[killerGuild]++
	out.DeathsByGuild[victimGuild]++
	if out.KillsMatrix[killerGuild] == nil {
		out.KillsMatrix[killerGuild] = make(map[string]int)
	}
	out.KillsMatrix[killerGuild][victimGuild]++
}

func (e *Extractor) stat(out *Extraction, guild, nick string) *domain.PlayerCombatStat {
	if out.Stats[guild] == nil {
		out.Stats[guild] = make(map[string]*domain.PlayerCombatStat)
	}
	stat := out.Stats[guild][nick]
	if stat == nil {
		stat = &domain.PlayerCombatStat{Nick: nick, Guild: guild}
		out.Stats[guild][nick] = stat
	}
	return stat
}
