package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	governanceengine "agora/contexts/dao-governance/governance-engine"
	"agora/contexts/dao-governance/governance-engine/application/queries"
	governanceerrors "agora/contexts/dao-governance/governance-engine/domain/errors"
	governancehttp "agora/contexts/dao-governance/governance-engine/transport/http"
	_ "agora/internal/platform/httpserver/docs"
	"agora/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance governanceengine.Module
	metrics    *metrics.Metrics
}

func New(
	governance governanceengine.Module,
	m *metrics.Metrics,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
		metrics:    m,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{},
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /api/governance/v1/proposals", s.handleCreateProposal)
	s.mux.HandleFunc("GET /api/governance/v1/proposals/{proposal_id}", s.handleProposalDetail)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/votes", s.handleSubmitVote)
	s.mux.HandleFunc("GET /api/governance/v1/proposals/{proposal_id}/votes", s.handleVoteHistory)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/execute", s.handleExecuteProposal)
	s.mux.HandleFunc("GET /api/governance/v1/monitor", s.handleMonitor)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, "healthz", http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	const route = "create_proposal"

	proposer := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if proposer == "" {
		s.writeError(w, route, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, route, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.governance.Handler.CreateProposalHandler(r.Context(), proposer, req)
	if err != nil {
		s.writeDomainError(w, route, err)
		return
	}
	s.metrics.ProposalsCreated.Inc()
	s.writeJSON(w, route, http.StatusCreated, resp)
}

func (s *Server) handleProposalDetail(w http.ResponseWriter, r *http.Request) {
	const route = "proposal_detail"

	resp, err := s.governance.Handler.ProposalDetailHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		s.writeDomainError(w, route, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, resp)
}

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	const route = "submit_vote"

	voter := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if voter == "" {
		s.writeError(w, route, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.SubmitVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, route, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.governance.Handler.SubmitVoteHandler(r.Context(), r.PathValue("proposal_id"), voter, req)
	if err != nil {
		s.countVoteRejection(err)
		s.writeDomainError(w, route, err)
		return
	}
	s.metrics.VotesSubmitted.Inc()
	s.writeJSON(w, route, http.StatusCreated, resp)
}

func (s *Server) handleVoteHistory(w http.ResponseWriter, r *http.Request) {
	const route = "vote_history"

	resp, err := s.governance.Handler.VoteHistoryHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		s.writeDomainError(w, route, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, resp)
}

func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	const route = "execute_proposal"

	executor := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if executor == "" {
		s.writeError(w, route, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.ExecuteProposalRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, route, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}
	}

	resp, err := s.governance.Handler.ExecuteProposalHandler(r.Context(), r.PathValue("proposal_id"), executor, req)
	if err != nil {
		s.countExecution(err)
		s.writeDomainError(w, route, err)
		return
	}
	s.metrics.Executions.WithLabelValues(resp.Status).Inc()
	s.writeJSON(w, route, http.StatusOK, resp)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	const route = "monitor"

	query := r.URL.Query() // gorm-postgres-enforcer: allow-raw-sql parses HTTP query parameters only
	monitorQuery := queries.MonitorQuery{
		ProposalID:     query.Get("proposal_id"),
		IncludeHistory: query.Get("include_history") == "true",
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil {
			s.writeError(w, route, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		monitorQuery.Limit = limit
	}

	resp, err := s.governance.Handler.MonitorHandler(r.Context(), monitorQuery)
	if err != nil {
		s.writeDomainError(w, route, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, resp)
}

func (s *Server) countVoteRejection(err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrAlreadyVoted):
		s.metrics.VotesRejected.WithLabelValues("already_voted").Inc()
	case errors.Is(err, governanceerrors.ErrVotingClosed):
		s.metrics.VotesRejected.WithLabelValues("voting_closed").Inc()
	case errors.Is(err, governanceerrors.ErrInvalidChoice),
		errors.Is(err, governanceerrors.ErrInvalidPower),
		errors.Is(err, governanceerrors.ErrInvalidParams):
		s.metrics.VotesRejected.WithLabelValues("invalid").Inc()
	}
}

func (s *Server) countExecution(err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrProposalRejected):
		s.metrics.Executions.WithLabelValues("rejected_blocked").Inc()
	case errors.Is(err, governanceerrors.ErrExecutionFailed):
		s.metrics.Executions.WithLabelValues("failed").Inc()
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, route string, err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrProposalNotFound),
		errors.Is(err, governanceerrors.ErrVoteNotFound):
		s.writeError(w, route, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidParams):
		s.writeError(w, route, http.StatusBadRequest, "invalid_params", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidChoice):
		s.writeError(w, route, http.StatusUnprocessableEntity, "invalid_choice", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidPower):
		s.writeError(w, route, http.StatusUnprocessableEntity, "invalid_power", err.Error())
	case errors.Is(err, governanceerrors.ErrAlreadyVoted):
		s.writeError(w, route, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, governanceerrors.ErrVotingClosed):
		s.writeError(w, route, http.StatusConflict, "voting_closed", err.Error())
	case errors.Is(err, governanceerrors.ErrVotingStillActive):
		s.writeError(w, route, http.StatusConflict, "voting_still_active", err.Error())
	case errors.Is(err, governanceerrors.ErrAlreadyExecuted):
		s.writeError(w, route, http.StatusConflict, "already_executed", err.Error())
	case errors.Is(err, governanceerrors.ErrDuplicateProposal),
		errors.Is(err, governanceerrors.ErrInvalidTransition),
		errors.Is(err, governanceerrors.ErrConflict):
		s.writeError(w, route, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, governanceerrors.ErrProposalRejected):
		s.writeError(w, route, http.StatusUnprocessableEntity, "proposal_rejected", err.Error())
	case errors.Is(err, governanceerrors.ErrExecutionFailed):
		s.writeError(w, route, http.StatusBadGateway, "execution_failed", err.Error())
	case errors.Is(err, governanceerrors.ErrOracleUnavailable):
		s.writeError(w, route, http.StatusServiceUnavailable, "oracle_unavailable", err.Error())
	default:
		s.writeError(w, route, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, route string, status int, code string, message string) {
	s.writeJSON(w, route, status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, payload any) {
	s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
