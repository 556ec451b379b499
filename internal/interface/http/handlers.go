package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aura-hub/aura-hub/internal/application/command"
	"github.com/aura-hub/aura-hub/internal/application/query"
	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type upsertUserRequest struct {
	UserID      shared.UserID `json:"userId"`
	ID          shared.UserID `json:"id"`
	DisplayName string        `json:"displayName"`
}

type createChallengeRequest struct {
	OwnerID      shared.UserID          `json:"ownerId"`
	UserID       shared.UserID          `json:"userId"`
	DisplayName  string                 `json:"displayName"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	DurationDays int                    `json:"durationDays"`
	Duration     int                    `json:"duration"`
	IsPrivate    bool                   `json:"isPrivate"`
	IsLongTerm   bool                   `json:"isLongTerm"`
	PointsConfig challenge.PointsConfig `json:"pointsConfig"`
}

type joinChallengeRequest struct {
	InviteCode  string        `json:"inviteCode"`
	UserID      shared.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
}

type completeChallengeRequest struct {
	UserID shared.UserID `json:"userId"`
}

type recordCheckRequest struct {
	ID          string             `json:"id"`
	UserID      shared.UserID      `json:"userId"`
	ChallengeID shared.ChallengeID `json:"challengeId"`
	Date        shared.Date        `json:"date"`
	Completed   *bool              `json:"completed"`
}

type bulkTodayChecksRequest struct {
	ChallengeIDs []shared.ChallengeID `json:"challengeIds"`
}

type dateOffsetRequest struct {
	Days int `json:"days"`
}

type dateOffsetResponse struct {
	Days  int         `json:"days"`
	Today shared.Date `json:"today"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUpsertUser handles POST /api/v1/users
func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpsertUser == nil {
		notConfigured(w, r)
		return
	}
	var req upsertUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := req.UserID
	if id == "" {
		id = req.ID
	}

	u, err := s.deps.UpsertUser.Handle(r.Context(), command.UpsertUserCommand{UserID: id, DisplayName: req.DisplayName})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// handleListUserChallenges handles GET /api/v1/users/{userId}/challenges
func (s *Server) handleListUserChallenges(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserChallenges == nil {
		notConfigured(w, r)
		return
	}
	ms, err := s.deps.UserChallenges.Handle(r.Context(), pathUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ms)
}

// handleListUserRecords handles GET /api/v1/users/{userId}/checks
func (s *Server) handleListUserRecords(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, query.ListRecordsQuery{UserID: pathUserID(r)})
}

// handleUserSummary handles GET /api/v1/users/{userId}/summary
func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Summary == nil {
		notConfigured(w, r)
		return
	}
	summary, err := s.deps.Summary.Handle(r.Context(), pathUserID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleYearlyStats handles GET /api/v1/users/{userId}/stats/{year}
func (s *Server) handleYearlyStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.YearlyStats == nil {
		notConfigured(w, r)
		return
	}
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "year must be a number")
		return
	}
	stats, err := s.deps.YearlyStats.Handle(r.Context(), query.YearlyStatsQuery{UserID: pathUserID(r), Year: year})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateChallenge handles POST /api/v1/challenges
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Challenges == nil {
		notConfigured(w, r)
		return
	}
	var req createChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = req.UserID
	}
	duration := req.DurationDays
	if duration == 0 {
		duration = req.Duration
	}
	if !s.applyDisplayName(w, r, owner, req.DisplayName) {
		return
	}

	c, err := s.deps.Challenges.CreateChallenge(r.Context(), command.CreateChallengeCommand{
		OwnerID:      owner,
		Title:        req.Title,
		Description:  req.Description,
		DurationDays: duration,
		IsPrivate:    req.IsPrivate,
		IsLongTerm:   req.IsLongTerm,
		PointsConfig: req.PointsConfig,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("challenge created",
		logger.ChallengeID(c.ID.String()),
		logger.UserID(owner.String()),
	)
	writeJSON(w, r, http.StatusCreated, c)
}

// handleJoinChallenge handles POST /api/v1/challenges/join
func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Challenges == nil {
		notConfigured(w, r)
		return
	}
	var req joinChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !s.applyDisplayName(w, r, req.UserID, req.DisplayName) {
		return
	}

	res, err := s.deps.Challenges.JoinChallenge(r.Context(), command.JoinChallengeCommand{
		UserID:     req.UserID,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetChallenge handles GET /api/v1/challenges/{challengeId}
func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetChallenge == nil {
		notConfigured(w, r)
		return
	}
	details, err := s.deps.GetChallenge.Handle(r.Context(), pathChallengeID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, details)
}

// handleGetRanking handles GET /api/v1/challenges/{challengeId}/ranking
func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ranking == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.Ranking.Handle(r.Context(), query.GetRankingQuery{
		ChallengeID: pathChallengeID(r),
		Limit:       getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleListChallengeRecords handles GET /api/v1/challenges/{challengeId}/checks
func (s *Server) handleListChallengeRecords(w http.ResponseWriter, r *http.Request) {
	s.listRecords(w, r, query.ListRecordsQuery{ChallengeID: pathChallengeID(r)})
}

// handleTodayChecks handles GET /api/v1/challenges/{challengeId}/checks/today
func (s *Server) handleTodayChecks(w http.ResponseWriter, r *http.Request) {
	if s.deps.TodayChecks == nil {
		notConfigured(w, r)
		return
	}
	tc, err := s.deps.TodayChecks.HandleOne(r.Context(), pathChallengeID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tc)
}

// handleLeaveChallenge handles DELETE /api/v1/challenges/{challengeId}/participants/{userId}
func (s *Server) handleLeaveChallenge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Challenges == nil {
		notConfigured(w, r)
		return
	}
	res, err := s.deps.Challenges.LeaveChallenge(r.Context(), command.LeaveChallengeCommand{
		UserID:      pathUserID(r),
		ChallengeID: pathChallengeID(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleCompleteChallenge handles POST /api/v1/challenges/{challengeId}/complete
func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Challenges == nil {
		notConfigured(w, r)
		return
	}
	var req completeChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Challenges.CompleteChallenge(r.Context(), command.CompleteChallengeCommand{
		UserID:      req.UserID,
		ChallengeID: pathChallengeID(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecordCheck handles POST /api/v1/checks. An omitted completed flag
// means the day is checked.
func (s *Server) handleRecordCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordCheck == nil {
		notConfigured(w, r)
		return
	}
	var req recordCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	res, err := s.deps.RecordCheck.Handle(r.Context(), command.RecordCheckCommand{
		ID:          req.ID,
		UserID:      req.UserID,
		ChallengeID: req.ChallengeID,
		Date:        req.Date,
		Completed:   completed,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.CheckRecorded(completed)
	writeJSON(w, r, http.StatusOK, res)
}

// handleBulkTodayChecks handles POST /api/v1/checks/today/bulk
func (s *Server) handleBulkTodayChecks(w http.ResponseWriter, r *http.Request) {
	if s.deps.TodayChecks == nil {
		notConfigured(w, r)
		return
	}
	var req bulkTodayChecksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.deps.TodayChecks.Handle(r.Context(), req.ChallengeIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, q query.ListRecordsQuery) {
	if s.deps.Records == nil {
		notConfigured(w, r)
		return
	}
	records, err := s.deps.Records.Handle(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEBUG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetDateOffset handles GET /api/v1/debug/date-offset
func (s *Server) handleGetDateOffset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.dateOffset())
}

// handleSetDateOffset handles POST /api/v1/debug/date-offset
func (s *Server) handleSetDateOffset(w http.ResponseWriter, r *http.Request) {
	var req dateOffsetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.TimeTravel.SetOffset(req.Days)
	s.logger.Warn("date offset changed", logger.Int("days", req.Days))
	writeJSON(w, r, http.StatusOK, s.dateOffset())
}

// handleResetDateOffset handles DELETE /api/v1/debug/date-offset
func (s *Server) handleResetDateOffset(w http.ResponseWriter, r *http.Request) {
	s.deps.TimeTravel.Reset()
	writeJSON(w, r, http.StatusOK, s.dateOffset())
}

func (s *Server) dateOffset() dateOffsetResponse {
	return dateOffsetResponse{
		Days:  s.deps.TimeTravel.Offset(),
		Today: shared.DateOf(s.deps.TimeTravel.Now()),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// applyDisplayName stores a display name sent along with a create or join.
// It reports false after writing an error response.
func (s *Server) applyDisplayName(w http.ResponseWriter, r *http.Request, id shared.UserID, name string) bool {
	if name == "" || s.deps.UpsertUser == nil {
		return true
	}
	if _, err := s.deps.UpsertUser.Handle(r.Context(), command.UpsertUserCommand{UserID: id, DisplayName: name}); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Handler not configured")
}

func pathUserID(r *http.Request) shared.UserID {
	return shared.UserID(mux.Vars(r)["userId"])
}

func pathChallengeID(r *http.Request) shared.ChallengeID {
	return shared.ChallengeID(mux.Vars(r)["challengeId"])
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
