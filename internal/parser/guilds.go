package parser

import (
	"regexp"
	"sort"
	"strings"
)

// War logs never label the home guild: its side of a combat line carries no
// "from <Guild>" token. Membership is therefore extracted asymmetrically —
// home members are whoever acts unlabeled, adversary members are whoever is
// named next to an explicit guild token.

var (
	trailingGuildRe = regexp.MustCompile(`from ([A-Za-z0-9 _\-]+?)\s*$`)
	homeActorRe     = regexp.MustCompile(`\]\s*([A-Za-z0-9_\-]+) (?:has killed|died to) `)
	killVictimRe    = regexp.MustCompile(`has killed ([A-Za-z0-9_\-]+) from `)
	deathKillerRe   = regexp.MustCompile(`([A-Za-z0-9_\-]+) died to ([A-Za-z0-9_\-]+) from `)
)

// Membership is the per-log guild roster. Guilds keep registration order
// (home guild first); GuildOf resolves ambiguous nicknames by
// first-registered-wins, never by map iteration order.
type Membership struct {
	guilds  []string
	members map[string]map[string]struct{}
}

func (m *Membership) Guilds() []string {
	return m.guilds
}

func (m *Membership) Members(guild string) map[string]struct{} {
	return m.members[guild]
}

func (m *Membership) GuildOf(nick string) (string, bool) {
	for _, g := range m.guilds {
		if _, ok := m.members[g][nick]; ok {
			return g, true
		}
	}
	return "", false
}

// AllNicks returns every known nickname, deterministically ordered by guild
// registration order and then alphabetically.
func (m *Membership) AllNicks() []string {
	seen := make(map[string]struct{})
	var nicks []string
	for _, g := range m.guilds {
		var batch []string
		for nick := range m.members[g] {
			if _, dup := seen[nick]; dup {
				continue
			}
			seen[nick] = struct{}{}
			batch = append(batch, nick)
		}
		sort.Strings(batch)
		nicks = append(nicks, batch...)
	}
	return nicks
}

type Detector struct {
	homeGuild string
}

func NewDetector(homeGuild string) *Detector {
	return &Detector{homeGuild: homeGuild}
}

// DetectGuilds collects every distinct trailing "from <Guild>" token, always
// including the home guild first. An empty or garbled log yields just the
// home guild.
func (d *Detector) DetectGuilds(logText string) []string {
	guilds := []string{d.homeGuild}
	seen := map[string]struct{}{d.homeGuild: {}}
	for _, line := range strings.Split(logText, "\n") {
		match := trailingGuildRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		guilds = append(guilds, name)
	}
	return guilds
}

// ExtractNicksForGuild partitions nicknames into a guild's membership set.
// The home guild owns every unlabeled acting side; any other guild owns the
// nicknames explicitly tagged with its token.
func (d *Detector) ExtractNicksForGuild(guild, logText string) map[string]struct{} {
	nicks := make(map[string]struct{})
	if guild == d.homeGuild {
		for _, line := range strings.Split(logText, "\n") {
			if match := homeActorRe.FindStringSubmatch(line); match != nil {
				nicks[match[1]] = struct{}{}
			}
		}
		return nicks
	}

	token := "from " + guild
	for _, line := range strings.Split(logText, "\n") {
		if !strings.Contains(line, token) {
			continue
		}
		trailing := trailingGuildRe.FindStringSubmatch(line)
		if trailing == nil || trailing[1] != guild {
			continue
		}
		if match := killVictimRe.FindStringSubmatch(line); match != nil {
			nicks[match[1]] = struct{}{}
			continue
		}
		if match := deathKillerRe.FindStringSubmatch(line); match != nil {
			nicks[match[2]] = struct{}{}
		}
	}
	return nicks
}

// BuildMembership runs detection plus per-guild extraction over one log.
func (d *Detector) BuildMembership(logText string) *Membership {
	m := &Membership{
		guilds:  d.DetectGuilds(logText),
		members: make(map[string]map[string]struct{}),
	}
	for _, g := range m.guilds {
		m.members[g] = d.ExtractNicksForGuild(g, logText)
	}
	return m
}
