package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nodewar-tracker/internal/api"
	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/constants"
	"nodewar-tracker/internal/domain"
	"nodewar-tracker/internal/repository"
	"nodewar-tracker/internal/resolver"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"
)

// RosterSource supplies the point-in-time family -> sub-guild snapshot.
type RosterSource interface {
	FamilyGuildMap(ctx context.Context) (map[string]string, error)
}

type APIRoster struct {
	client *api.LookupClient
}

func NewAPIRoster(client *api.LookupClient) *APIRoster {
	return &APIRoster{client: client}
}

func (a *APIRoster) FamilyGuildMap(ctx context.Context) (map[string]string, error) {
	resp, err := a.client.GetAllianceRoster(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(resp.Entries))
	for _, entry := range resp.Entries {
		m[NormalizeFamily(entry.Familia)] = entry.Guilda
	}
	return m, nil
}

// NormalizeFamily is the key normalization shared by the roster snapshot and
// the merge's lookups.
func NormalizeFamily(family string) string {
	return strings.ToLower(resolver.Sanitize(family))
}

type MergeOptions struct {
	ForceReprocess bool `json:"forceReprocess"`
	PruneInactive  bool `json:"pruneInactive"`
}

type MergeReport struct {
	LogsProcessed int    `json:"logsProcessed"`
	PlayersMerged int    `json:"playersMerged"`
	PlayersPruned int    `json:"playersPruned"`
	Message       string `json:"message,omitempty"`
}

// MergeEngine folds a month's ProcessedLogs into per-player MonthlyRecords,
// reclassifying home-guild players into their real alliance sub-guild.
type MergeEngine struct {
	monthlyRepo *repository.MonthlyRepository
	warRepo     *repository.WarLogRepository
	roster      RosterSource
	resolver    *resolver.Resolver
	cfg         *config.Config
	logger      zerolog.Logger
	tracked     map[string]struct{}
}

func NewMergeEngine(
	monthlyRepo *repository.MonthlyRepository,
	warRepo *repository.WarLogRepository,
	roster RosterSource,
	res *resolver.Resolver,
	cfg *config.Config,
	logger zerolog.Logger,
) *MergeEngine {
	tracked := make(map[string]struct{}, len(cfg.AllianceGuilds))
	for _, g := range cfg.AllianceGuilds {
		tracked[g] = struct{}{}
	}
	return &MergeEngine{
		monthlyRepo: monthlyRepo,
		warRepo:     warRepo,
		roster:      roster,
		resolver:    res,
		cfg:         cfg,
		logger:      logger,
		tracked:     tracked,
	}
}

// MergeMonth loads the month's logs, merges them and persists the outcome.
// Roster unavailability degrades to "no reclassification possible"; only an
// unreachable store is a hard failure.
func (e *MergeEngine) MergeMonth(ctx context.Context, month string, opts MergeOptions) (MergeReport, error) {
	report := MergeReport{}

	logs, err := e.warRepo.ListByMonth(ctx, month)
	if err != nil {
		report.Message = fmt.Sprintf("failed to load logs for %s: %v", month, err)
		return report, fmt.Errorf("failed to load logs for %s: %w", month, err)
	}

	familyGuildMap, err := e.roster.FamilyGuildMap(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("alliance roster unavailable, merging without reclassification")
		report.Message = fmt.Sprintf("roster unavailable, no reclassification: %v", err)
		familyGuildMap = map[string]string{}
	}

	base := map[string]domain.MonthlyRecord{}
	if !opts.ForceReprocess {
		existing, err := e.monthlyRepo.GetByMonth(ctx, month)
		if err != nil {
			report.Message = fmt.Sprintf("failed to load existing records: %v", err)
			return report, fmt.Errorf("failed to load existing records for %s: %w", month, err)
		}
		for _, rec := range existing {
			base[rec.Nick] = rec
		}
	}

	records, folded := e.Merge(ctx, month, logs, familyGuildMap, base)
	report.LogsProcessed = folded
	report.PlayersMerged = len(records)

	if err := e.monthlyRepo.UpsertBatch(ctx, records); err != nil {
		report.Message = fmt.Sprintf("failed to persist monthly records: %v", err)
		return report, fmt.Errorf("failed to persist monthly records for %s: %w", month, err)
	}

	if opts.PruneInactive {
		active := make([]string, 0, len(records))
		for nick := range records {
			active = append(active, nick)
		}
		pruned, err := e.monthlyRepo.PruneNotIn(ctx, month, active)
		if err != nil {
			report.Message = fmt.Sprintf("prune failed: %v", err)
			return report, fmt.Errorf("failed to prune inactive players for %s: %w", month, err)
		}
		report.PlayersPruned = pruned
	}

	e.logger.Info().
		Str("month", month).
		Int("logs_processed", report.LogsProcessed).
		Int("players_merged", report.PlayersMerged).
		Int("players_pruned", report.PlayersPruned).
		Msg("monthly merge completed")

	return report, nil
}

// Merge folds logs into records on top of base, skipping logs whose ids were
// folded before. Re-merging the same inputs yields identical totals. Returns
// the merged records and how many logs were actually folded.
func (e *MergeEngine) Merge(
	ctx context.Context,
	month string,
	logs []domain.ProcessedLog,
	familyGuildMap map[string]string,
	base map[string]domain.MonthlyRecord,
) (map[string]domain.MonthlyRecord, int) {
	records := make(map[string]domain.MonthlyRecord, len(base))
	processed := make(map[string]struct{})
	for nick, rec := range base {
		records[nick] = rec
		for _, id := range rec.LogsProcessed {
			processed[id] = struct{}{}
		}
	}

	var pending []domain.ProcessedLog
	for _, log := range logs {
		if _, done := processed[log.ID]; done {
			continue
		}
		pending = append(pending, log)
	}

	families := e.resolveMissingFamilies(ctx, pending)

	folded := 0
	for i := range pending {
		log := &pending[i]
		e.foldLog(records, month, log, familyGuildMap, families)
		folded++
	}

	// KD ratios come from the summed totals, never incrementally.
	for nick, rec := range records {
		rec.KDOverall = domain.KD(rec.Kills, rec.Deaths)
		rec.KDVsRival = domain.KD(rec.KillsVsRival, rec.DeathsVsRival)
		rec.KDVsOthers = domain.KD(rec.KillsVsOthers, rec.DeathsVsOthers)
		records[nick] = rec
	}

	return records, folded
}

func (e *MergeEngine) foldLog(
	records map[string]domain.MonthlyRecord,
	month string,
	log *domain.ProcessedLog,
	familyGuildMap map[string]string,
	families map[string]string,
) {
	for _, guild := range orderedGuilds(log) {
		stats := log.PlayerStatsByGuild[guild]
		var nicks []string
		for nick := range stats {
			nicks = append(nicks, nick)
		}
		sort.Strings(nicks)

		for _, nick := range nicks {
			stat := stats[nick]

			var guilda, familia string
			switch {
			// The home bucket is checked first: its name may itself be a
			// tracked sub-guild's, and its players always reclassify.
			case guild == e.cfg.HomeGuild:
				familia = stat.Family
				if e.familyUnusable(stat) {
					if resolved, ok := families[nick]; ok {
						familia = resolved
					}
				}
				mapped, ok := familyGuildMap[NormalizeFamily(familia)]
				if !ok || !e.isTracked(mapped) {
					e.logger.Debug().
						Str("nick", nick).
						Str("familia", familia).
						Msg("player not in tracked alliance sub-guilds, excluded")
					continue
				}
				guilda = mapped

			case e.isTracked(guild):
				// The log already attributes the player directly.
				guilda, familia = guild, stat.Family

			default:
				// Adversary guilds never enter monthly records.
				continue
			}

			rec, ok := records[nick]
			if !ok {
				rec = domain.MonthlyRecord{Month: month, Nick: nick}
			}
			rec.Guilda = guilda
			if familia != "" {
				rec.Familia = familia
			}
			foldStat(&rec, stat)
			rec.LogsProcessed = append(rec.LogsProcessed, log.ID)
			records[nick] = rec
		}
	}
}

func foldStat(rec *domain.MonthlyRecord, stat *domain.PlayerCombatStat) {
	idx := -1
	for i := range rec.ClassesPlayed {
		if rec.ClassesPlayed[i].Classe == stat.Class {
			idx = i
			break
		}
	}
	if idx == -1 {
		rec.ClassesPlayed = append(rec.ClassesPlayed, domain.ClassStat{Classe: stat.Class})
		idx = len(rec.ClassesPlayed) - 1
	}

	cs := &rec.ClassesPlayed[idx]
	cs.Kills += stat.Kills
	cs.Deaths += stat.Deaths
	cs.KillsVsRival += stat.KillsVsRival
	cs.DeathsVsRival += stat.DeathsVsRival
	cs.KillsVsOthers += stat.KillsVsOthers
	cs.DeathsVsOthers += stat.DeathsVsOthers

	rec.Kills += stat.Kills
	rec.Deaths += stat.Deaths
	rec.KillsVsRival += stat.KillsVsRival
	rec.DeathsVsRival += stat.DeathsVsRival
	rec.KillsVsOthers += stat.KillsVsOthers
	rec.DeathsVsOthers += stat.DeathsVsOthers
}

// resolveMissingFamilies runs the secondary nickname -> family resolution for
// home-guild players whose family is missing or placeholder, with bounded
// concurrency and a wall-clock budget. Past the budget the merge proceeds
// with whatever resolved.
func (e *MergeEngine) resolveMissingFamilies(ctx context.Context, logs []domain.ProcessedLog) map[string]string {
	seen := make(map[string]struct{})
	var nicks []string
	for i := range logs {
		for nick, stat := range logs[i].PlayerStatsByGuild[e.cfg.HomeGuild] {
			if !e.familyUnusable(stat) {
				continue
			}
			if _, dup := seen[nick]; dup {
				continue
			}
			seen[nick] = struct{}{}
			nicks = append(nicks, nick)
		}
	}
	if len(nicks) == 0 {
		return map[string]string{}
	}
	sort.Strings(nicks)

	budgetCtx, cancel := context.WithTimeout(ctx, constants.FamilyResolveBudget)
	defer cancel()

	pool := pond.NewPool(constants.FamilyResolveConcurrency, pond.WithContext(budgetCtx))

	var mu sync.Mutex
	out := make(map[string]string, len(nicks))
	for _, nick := range nicks {
		pool.Submit(func() {
			id, err := e.resolver.Resolve(budgetCtx, nick)
			if err != nil || resolver.IsPlaceholderFamily(id.Family) || id.Source == domain.SourceNotFound {
				return
			}
			mu.Lock()
			out[nick] = id.Family
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	e.logger.Debug().
		Int("requested", len(nicks)).
		Int("resolved", len(out)).
		Msg("secondary family resolution finished")

	return out
}

func (e *MergeEngine) familyUnusable(stat *domain.PlayerCombatStat) bool {
	return stat.IdentitySource == domain.SourcePlaceholder ||
		stat.IdentitySource == domain.SourceNotFound ||
		resolver.IsPlaceholderFamily(stat.Family)
}

func (e *MergeEngine) isTracked(guild string) bool {
	_, ok := e.tracked[guild]
	return ok
}

func orderedGuilds(log *domain.ProcessedLog) []string {
	if len(log.Guilds) > 0 {
		return log.Guilds
	}
	var guilds []string
	for g := range log.PlayerStatsByGuild {
		guilds = append(guilds, g)
	}
	sort.Strings(guilds)
	return guilds
}
