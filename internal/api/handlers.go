package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/auth"
	"github.com/levelhabit/levelhabit/internal/domain"
)

const (
	defaultRecordLimit      = 30
	defaultLeaderboardLimit = 10
	maxListLimit            = 100
)

// userID returns the authenticated caller. The auth middleware guarantees
// it on every /api/v1 route.
func userID(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &domain.InvalidInputError{Field: "body", Reason: err.Error()}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &domain.InvalidInputError{Field: key, Reason: "must be a positive integer"}
	}
	return min(n, maxListLimit), nil
}

func queryDate(r *http.Request, key string) (*civil.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	return parseDate(key, raw)
}

func parseDate(field, raw string) (*civil.Date, error) {
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, &domain.InvalidInputError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return &d, nil
}

// ─── Users ──────────────────────────────────────────────────────────────────

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in engagement.NewUserInput
	if err := decode(r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	u, err := s.engine.CreateUser(r.Context(), userID(r), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Profile(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd engagement.ProfileUpdate
	if err := decode(r, &upd); err != nil {
		writeDomainError(w, r, err)
		return
	}
	u, err := s.engine.UpdateProfile(r.Context(), userID(r), upd)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ─── Habits ─────────────────────────────────────────────────────────────────

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	archived := r.URL.Query().Get("archived") == "true"
	habits, err := s.engine.ListHabits(r.Context(), userID(r), archived)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if habits == nil {
		habits = []domain.Habit{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"habits": habits})
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var in engagement.NewHabitInput
	if err := decode(r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h, err := s.engine.CreateHabit(r.Context(), userID(r), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleArchiveHabit(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ArchiveHabit(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

func (s *Server) handleCompleteHabit(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if err := decode(r, &body); err != nil {
		writeDomainError(w, r, err)
		return
	}
	req := engagement.CompletionRequest{
		UserID:  userID(r),
		HabitID: chi.URLParam(r, "id"),
		Note:    body.Note,
	}
	if body.Date != "" {
		d, err := parseDate("date", body.Date)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		req.Date = d
	}

	res, err := s.engine.CompleteHabit(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRecordLimit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	recs, err := s.engine.ListRecords(r.Context(), userID(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.HabitRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": recs})
}

// ─── Achievements & Jobs ────────────────────────────────────────────────────

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Unlocks().Achievements(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": list})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Unlocks().Jobs(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": list})
}

func (s *Server) handleEquipJob(w http.ResponseWriter, r *http.Request) {
	u, err := s.engine.Unlocks().EquipJob(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCheckUnlocks(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CheckUnlocks(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Leaderboard & Stats ────────────────────────────────────────────────────

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "limit", defaultLeaderboardLimit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	entries, err := s.engine.Leaderboard(r.Context(), n)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	d, err := queryDate(r, "date")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	st, err := s.engine.DailyStats(r.Context(), userID(r), d)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWeeklyStats(w http.ResponseWriter, r *http.Request) {
	start, err := queryDate(r, "start")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	st, err := s.engine.WeeklyStats(r.Context(), userID(r), start)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
