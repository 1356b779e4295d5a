package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"nodewar-tracker/internal/domain"
	"nodewar-tracker/internal/repository"
	"nodewar-tracker/internal/service"

	"github.com/rs/zerolog"
)

// TrackerServer exposes the engine over thin JSON endpoints. All logic lives
// in the services; handlers only decode, dispatch and encode.
type TrackerServer struct {
	warSvc      *service.WarService
	mergeEngine *service.MergeEngine
	monthlyRepo *repository.MonthlyRepository
	logger      zerolog.Logger
}

func NewTrackerServer(
	warSvc *service.WarService,
	mergeEngine *service.MergeEngine,
	monthlyRepo *repository.MonthlyRepository,
	logger zerolog.Logger,
) *TrackerServer {
	return &TrackerServer{
		warSvc:      warSvc,
		mergeEngine: mergeEngine,
		monthlyRepo: monthlyRepo,
		logger:      logger,
	}
}

func (s *TrackerServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/wars", s.handleProcessWar)
	mux.HandleFunc("GET /api/v1/wars/{id}", s.handleGetWar)
	mux.HandleFunc("DELETE /api/v1/wars/{id}", s.handleDeleteWar)
	mux.HandleFunc("PUT /api/v1/wars/{id}/timeline", s.handleCorrectTimeline)
	mux.HandleFunc("POST /api/v1/rankings/{month}/merge", s.handleMergeMonth)
	mux.HandleFunc("GET /api/v1/rankings/{month}", s.handleGetRankings)
}

type processWarRequest struct {
	LogText string `json:"logText"`
	domain.LogMetadata
}

func (s *TrackerServer) handleProcessWar(w http.ResponseWriter, r *http.Request) {
	var req processWarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LogText == "" {
		writeError(w, http.StatusBadRequest, "logText is required")
		return
	}

	log, err := s.warSvc.ProcessAndStore(r.Context(), req.LogText, req.LogMetadata)
	if err != nil {
		// Processing survived but the save failed: hand back the result so
		// the caller can retry the save without re-running the pipeline.
		if log != nil {
			s.logger.Warn().Err(err).Msg("returning unsaved processing result")
			writeJSON(w, http.StatusConflict, log)
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *TrackerServer) handleGetWar(w http.ResponseWriter, r *http.Request) {
	log, err := s.warSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *TrackerServer) handleDeleteWar(w http.ResponseWriter, r *http.Request) {
	if err := s.warSvc.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timelineCorrectionRequest struct {
	TotalNodeSeconds int            `json:"totalNodeSeconds"`
	OccupancyByGuild map[string]int `json:"occupancyByGuild"`
}

func (s *TrackerServer) handleCorrectTimeline(w http.ResponseWriter, r *http.Request) {
	var req timelineCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	log, err := s.warSvc.CorrectTimeline(r.Context(), r.PathValue("id"), req.TotalNodeSeconds, req.OccupancyByGuild)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *TrackerServer) handleMergeMonth(w http.ResponseWriter, r *http.Request) {
	var opts service.MergeOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	report, err := s.mergeEngine.MergeMonth(r.Context(), r.PathValue("month"), opts)
	if err != nil {
		// Best effort: the report still carries counts and a message.
		writeJSON(w, http.StatusInternalServerError, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *TrackerServer) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	records, err := s.monthlyRepo.GetByMonth(r.Context(), r.PathValue("month"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []domain.MonthlyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *TrackerServer) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
