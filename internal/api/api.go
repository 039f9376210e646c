// Package api serves the ranked-trends read API and the outcome feedback
// endpoint. Callers authenticate with an API key; the organization is
// always resolved from the key, never taken from the request.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/core/domain"
	apperrors "github.com/vkuksa/trendwatch/internal/core/errors"
	"github.com/vkuksa/trendwatch/internal/storage"
)

const (
	headerContentType = "Content-Type"
	headerAPIKey      = "X-API-Key"
	headerAuth        = "Authorization"
	bearerPrefix      = "Bearer "
	contentTypeJSON   = "application/json"

	endpointTrends   = "/api/trends"
	endpointOutcomes = "/api/outcomes"

	defaultTrendLimit = 20
	maxTrendLimit     = 100
	maxOutcomeBody    = 4 * 1024

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Store is the read side of the API.
type Store interface {
	OrgProfileByAPIKey(ctx context.Context, apiKey string) (domain.OrgProfile, error)
	RankedTrendsForOrg(ctx context.Context, orgID string, limit int) ([]storage.RankedTrend, error)
}

// Learner folds outcome signals into learned affinities.
type Learner interface {
	UpdateAffinity(ctx context.Context, orgID, topic string, outcomeSignal float64) (domain.OrgTopicAffinity, error)
}

// Handler routes the API endpoints.
type Handler struct {
	store   Store
	learner Learner
	logger  *zerolog.Logger
}

func NewHandler(store Store, learner Learner, logger *zerolog.Logger) *Handler {
	return &Handler{store: store, learner: learner, logger: logger}
}

type trendPayload struct {
	EventKey         string   `json:"event_key"`
	EventTitle       string   `json:"event_title"`
	ConfidenceScore  float64  `json:"confidence_score"`
	TrendStage       string   `json:"trend_stage"`
	IsBreaking       bool     `json:"is_breaking"`
	PolicyDomains    []string `json:"policy_domains,omitempty"`
	Geographies      []string `json:"geographies,omitempty"`
	FirstSeenAt      string   `json:"first_seen_at"`
	RelevanceScore   float64  `json:"relevance_score"`
	ProfilePoints    float64  `json:"profile_points"`
	AffinityPoints   float64  `json:"affinity_points"`
	ExplorationBonus float64  `json:"exploration_bonus"`
	IsNewOpportunity bool     `json:"is_new_opportunity"`
	Reasons          []string `json:"reasons,omitempty"`
}

type outcomeRequest struct {
	Topic         string  `json:"topic"`
	OutcomeSignal float64 `json:"outcome_signal"`
}

type outcomeResponse struct {
	Topic         string  `json:"topic"`
	AffinityScore float64 `json:"affinity_score"`
	TimesUsed     int     `json:"times_used"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP dispatches to the endpoint handlers and records per-endpoint
// metrics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var status int

	switch {
	case r.URL.Path == endpointTrends && r.Method == http.MethodGet:
		status = h.handleTrends(w, r)
	case r.URL.Path == endpointOutcomes && r.Method == http.MethodPost:
		status = h.handleOutcome(w, r)
	default:
		status = h.writeError(w, http.StatusNotFound, "not found")
	}

	recordRequest(r.URL.Path, status)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) int {
	org, status := h.authenticate(w, r)
	if status != 0 {
		return status
	}

	limit := defaultTrendLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTrendLimit {
			return h.writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 100]")
		}

		limit = parsed
	}

	// Fetch the whole stored ranking and cut client-side, so a small
	// limit keeps the domain-diversity slots instead of re-truncating by
	// relevance alone.
	ranked, err := h.store.RankedTrendsForOrg(r.Context(), org.ID, maxTrendLimit)
	if err != nil {
		h.logger.Error().Err(err).Str("organization_id", org.ID).Msg("load ranked trends failed")

		return h.writeError(w, http.StatusInternalServerError, "internal error")
	}

	ranked = selectWithDiversity(ranked, org.Domains, limit)

	payload := make([]trendPayload, 0, len(ranked))
	for _, rt := range ranked {
		payload = append(payload, toTrendPayload(rt))
	}

	return h.writeJSON(w, http.StatusOK, map[string]any{"trends": payload})
}

// selectWithDiversity cuts a stored ranking down to limit rows while
// re-applying the one-slot-per-declared-domain reservation, so a client
// limit below the stored list size cannot silently drop a domain's only
// trend.
func selectWithDiversity(ranked []storage.RankedTrend, declaredDomains []string, limit int) []storage.RankedTrend {
	if limit >= len(ranked) {
		return ranked
	}

	selected := make([]int, 0, limit)
	taken := make(map[int]bool, limit)

	for _, declared := range declaredDomains {
		for i, rt := range ranked {
			if taken[i] || !containsFold(rt.Event.PolicyDomains, declared) {
				continue
			}

			selected = append(selected, i)
			taken[i] = true

			break
		}

		if len(selected) >= limit {
			break
		}
	}

	for i := range ranked {
		if len(selected) >= limit {
			break
		}

		if taken[i] {
			continue
		}

		selected = append(selected, i)
		taken[i] = true
	}

	sort.Ints(selected)

	out := make([]storage.RankedTrend, 0, len(selected))
	for _, i := range selected {
		out = append(out, ranked[i])
	}

	return out
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}

	return false
}

func (h *Handler) handleOutcome(w http.ResponseWriter, r *http.Request) int {
	org, status := h.authenticate(w, r)
	if status != 0 {
		return status
	}

	var req outcomeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOutcomeBody)).Decode(&req); err != nil {
		return h.writeError(w, http.StatusBadRequest, "malformed JSON body")
	}

	if strings.TrimSpace(req.Topic) == "" {
		return h.writeError(w, http.StatusBadRequest, "topic is required")
	}

	updated, err := h.learner.UpdateAffinity(r.Context(), org.ID, req.Topic, req.OutcomeSignal)
	if err != nil {
		if errors.Is(err, apperrors.ErrMalformedInput) {
			return h.writeError(w, http.StatusBadRequest, "outcome_signal must be in [0, 1]")
		}

		h.logger.Error().Err(err).Str("organization_id", org.ID).Msg("affinity update failed")

		return h.writeError(w, http.StatusInternalServerError, "internal error")
	}

	return h.writeJSON(w, http.StatusOK, outcomeResponse{
		Topic:         updated.Topic,
		AffinityScore: updated.AffinityScore,
		TimesUsed:     updated.TimesUsed,
	})
}

// authenticate resolves the calling organization from the API key header.
// Returns a zero status on success; otherwise the error response has
// already been written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.OrgProfile, int) {
	key := r.Header.Get(headerAPIKey)
	if key == "" {
		if auth := r.Header.Get(headerAuth); strings.HasPrefix(auth, bearerPrefix) {
			key = strings.TrimPrefix(auth, bearerPrefix)
		}
	}

	if key == "" {
		return domain.OrgProfile{}, h.writeError(w, http.StatusUnauthorized, "missing API key")
	}

	org, err := h.store.OrgProfileByAPIKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperrors.ErrOrganizationNotFound) {
			return domain.OrgProfile{}, h.writeError(w, http.StatusUnauthorized, "invalid API key")
		}

		h.logger.Error().Err(err).Msg("api key lookup failed")

		return domain.OrgProfile{}, h.writeError(w, http.StatusInternalServerError, "internal error")
	}

	return org, 0
}

func toTrendPayload(rt storage.RankedTrend) trendPayload {
	return trendPayload{
		EventKey:         rt.Event.EventKey,
		EventTitle:       rt.Event.EventTitle,
		ConfidenceScore:  rt.Event.ConfidenceScore,
		TrendStage:       string(rt.Event.TrendStage),
		IsBreaking:       rt.Event.IsBreaking,
		PolicyDomains:    rt.Event.PolicyDomains,
		Geographies:      rt.Event.Geographies,
		FirstSeenAt:      rt.Event.FirstSeenAt.UTC().Format(time.RFC3339),
		RelevanceScore:   rt.Score.RelevanceScore,
		ProfilePoints:    rt.Score.ProfileComponent,
		AffinityPoints:   rt.Score.AffinityComponent,
		ExplorationBonus: rt.Score.ExplorationComponent,
		IsNewOpportunity: rt.Score.IsNewOpportunity,
		Reasons:          rt.Score.Reasons,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) int {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("write json failed")
	}

	return status
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) int {
	return h.writeJSON(w, status, errorResponse{Error: message})
}
