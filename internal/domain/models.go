package domain

import (
	"time"
)

type EventType string

const (
	EventKill  EventType = "kill"
	EventDeath EventType = "death"
)

// IdentitySource records where a player's class/family came from, so that
// placeholder identities are never mistaken for real lookup answers.
type IdentitySource string

const (
	SourceLookup      IdentitySource = "lookup"
	SourceNotFound    IdentitySource = "not_found"
	SourcePlaceholder IdentitySource = "placeholder"
)

type Identity struct {
	Class  string         `json:"classe"`
	Family string         `json:"familia"`
	Source IdentitySource `json:"source,omitempty"`
}

// TimelineEvent is one observed kill or death, ordered by discovery within a
// log and later sorted by Time for occupancy computation.
type TimelineEvent struct {
	// Time is seconds since midnight, parsed from the [HH:MM:SS] line prefix.
	Time *int `json:"time,omitempty"`
	// Tick is the last war tick seen before this event (last-known-tick).
	Tick          *int      `json:"tick,omitempty"`
	Type          EventType `json:"type"`
	OpponentNick  string    `json:"opponentNick"`
	OpponentGuild string    `json:"opponentGuild"`
}

type PlayerCombatStat struct {
	Nick           string          `json:"nick"`
	Guild          string          `json:"guild"`
	Kills          int             `json:"kills"`
	Deaths         int             `json:"deaths"`
	KillsVsRival   int             `json:"killsVsRival"`
	DeathsVsRival  int             `json:"deathsVsRival"`
	KillsVsOthers  int             `json:"killsVsOthers"`
	DeathsVsOthers int             `json:"deathsVsOthers"`
	Class          string          `json:"classe,omitempty"`
	Family         string          `json:"familia,omitempty"`
	IdentitySource IdentitySource  `json:"identitySource,omitempty"`
	Events         []TimelineEvent `json:"events,omitempty"`
}

type ClassCount struct {
	Classe string `json:"classe"`
	Count  int    `json:"count"`
}

type RosterEntry struct {
	Nick    string `json:"nick"`
	Familia string `json:"familia"`
}

// ProcessedLog is the complete structured output of one war log. Created by
// the pipeline, persisted once, then read-only history.
type ProcessedLog struct {
	ID        string `json:"id,omitempty"`
	Territory string `json:"territory,omitempty"`
	NodeName  string `json:"nodeName,omitempty"`

	Guilds             []string                                `json:"guilds"`
	TotalGeral         int                                     `json:"totalGeral"`
	TotalPorClasse     []ClassCount                            `json:"totalPorClasse"`
	Classes            map[string][]RosterEntry                `json:"classes"`
	ClassesByGuild     map[string]map[string][]RosterEntry     `json:"classesByGuild"`
	KillsByGuild       map[string]int                          `json:"killsByGuild"`
	DeathsByGuild      map[string]int                          `json:"deathsByGuild"`
	KDRatioByGuild     map[string]Ratio                        `json:"kdRatioByGuild"`
	KillsMatrix        map[string]map[string]int               `json:"killsMatrix"`
	PlayerStatsByGuild map[string]map[string]*PlayerCombatStat `json:"playerStatsByGuild"`

	TotalNodeSeconds int            `json:"totalNodeSeconds"`
	OccupancyByGuild map[string]int `json:"occupancyByGuild"`

	IsWin     *bool  `json:"isWin,omitempty"`
	WinReason string `json:"winReason,omitempty"`

	// Degraded marks a log that carries placeholder identities, so monthly
	// merges know to attempt re-resolution.
	Degraded bool `json:"degraded,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// LogMetadata accompanies raw log text into the pipeline.
type LogMetadata struct {
	Territory string `json:"territory"`
	NodeName  string `json:"nodeName"`
	IsWin     *bool  `json:"isWin,omitempty"`
	WinReason string `json:"winReason,omitempty"`
}

type ClassStat struct {
	Classe         string `json:"classe"`
	Kills          int    `json:"kills"`
	Deaths         int    `json:"deaths"`
	KillsVsRival   int    `json:"killsVsRival"`
	DeathsVsRival  int    `json:"deathsVsRival"`
	KillsVsOthers  int    `json:"killsVsOthers"`
	DeathsVsOthers int    `json:"deathsVsOthers"`
}

// MonthlyRecord aggregates one player across all logs of a calendar month.
// Superseded, not versioned, on reprocessing.
type MonthlyRecord struct {
	Month          string      `json:"month"` // 2006-01
	Nick           string      `json:"nick"`
	Familia        string      `json:"familia"`
	Guilda         string      `json:"guilda"`
	ClassesPlayed  []ClassStat `json:"classesPlayed"`
	Kills          int         `json:"kills"`
	Deaths         int         `json:"deaths"`
	KillsVsRival   int         `json:"killsVsRival"`
	DeathsVsRival  int         `json:"deathsVsRival"`
	KillsVsOthers  int         `json:"killsVsOthers"`
	DeathsVsOthers int         `json:"deathsVsOthers"`
	KDOverall      Ratio       `json:"kdOverall"`
	KDVsRival      Ratio       `json:"kdVsRival"`
	KDVsOthers     Ratio       `json:"kdVsOthers"`
	LogsProcessed  []string    `json:"logsProcessed"`
	UpdatedAt      time.Time   `json:"updatedAt,omitempty"`
}
