package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sitedrop/internal/history"
	"sitedrop/internal/provider"
	"sitedrop/internal/quota"
	"sitedrop/internal/security"
	"sitedrop/internal/upload"

	"github.com/go-chi/chi/v5"
)

// QuotaCheckName is the sentinel deployment name that triggers the
// quota-check-only path; file fields are ignored for it.
const QuotaCheckName = "quota-check"

// HandleDeploy handles site deployment requests
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	now := s.Now()
	clientID := quota.Fingerprint(r)

	var req upload.Request
	body := http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{"error": "payload too large"})
			return
		}
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid JSON payload"})
		return
	}

	// Quota-check queries report state without charging anything.
	if req.Name == QuotaCheckName {
		st := s.Tracker.Status(clientID, now)
		resp := map[string]interface{}{"remainingQuota": st.Remaining}
		if st.Cooldown {
			resp["cooldown"] = true
			resp["remainingSeconds"] = st.RemainingSeconds
		}
		s.respondJSON(w, http.StatusOK, resp)
		return
	}

	// Field presence and name format are rejected before any quota
	// bookkeeping or file processing.
	if err := upload.Validate(req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	// A missing token is a server problem, never charged to the client.
	if !s.Provider.HasToken() {
		s.Logger.Error("Deployment token not configured", "site", req.Name)
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "server configuration error: deployment token missing"})
		return
	}

	// Admission and debit are one atomic step; the reservation is
	// settled below once the deployment outcome is known.
	remaining, err := s.Tracker.Reserve(clientID, now)
	if err != nil {
		var cdErr *quota.CooldownError
		if errors.As(err, &cdErr) {
			s.respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":            "cooldown active, please wait before deploying again",
				"cooldown":         true,
				"remainingSeconds": cdErr.RemainingSeconds,
				"remainingQuota":   cdErr.Remaining,
			})
			return
		}
		if errors.Is(err, quota.ErrExhausted) {
			s.respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":          "daily deployment quota exhausted",
				"remainingQuota": 0,
			})
			return
		}
		s.Logger.Error("Quota admission failed", "error", err, "client", clientID)
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "quota check failed"})
		return
	}

	files, err := upload.Process(req)
	if err != nil {
		// Nothing was submitted, so the reserved unit goes back.
		s.Tracker.Refund(clientID)
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	start := time.Now()
	dep, err := s.Provider.Deploy(r.Context(), req.Name, files)
	duration := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, provider.ErrNameTaken) {
			// Charged without cooldown so name-guessing retries are not free.
			s.Tracker.CommitNameTaken(clientID)
			s.recordAttempt(r.Context(), &history.DeploymentRecord{
				Site:            req.Name,
				Client:          clientID,
				Status:          "name_taken",
				DurationSeconds: &duration,
				ErrorMessage:    stringPtr(err.Error()),
			})
			s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":          err.Error(),
				"remainingQuota": remaining,
			})
			return
		}

		s.Tracker.Refund(clientID)
		s.recordAttempt(r.Context(), &history.DeploymentRecord{
			Site:            req.Name,
			Client:          clientID,
			Status:          "failed",
			DurationSeconds: &duration,
			ErrorMessage:    stringPtr(err.Error()),
		})
		s.Logger.Error("Deployment failed", "site", req.Name, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	s.Tracker.CommitDeploy(clientID, now)
	s.recordAttempt(r.Context(), &history.DeploymentRecord{
		Site:            req.Name,
		Client:          clientID,
		Status:          "success",
		DeploymentID:    stringPtr(dep.ID),
		URL:             stringPtr(dep.URL),
		DurationSeconds: &duration,
	})

	s.Logger.Info("deployment completed", "site", req.Name, "url", dep.URL)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"url":            dep.URL,
		"deploymentId":   dep.ID,
		"remainingQuota": remaining,
	})
}

// recordAttempt writes a deployment attempt to the history log.
// History is optional (disabled in test mode); failures only log.
func (s *Server) recordAttempt(ctx context.Context, record *history.DeploymentRecord) {
	if s.TestMode || s.History == nil {
		return
	}

	if _, err := s.History.RecordDeployment(ctx, record); err != nil {
		s.Logger.Error("Failed to record deployment history", "error", err, "site", record.Site)
	}
}

// SiteHistoryLimit caps the number of attempts returned per site.
const SiteHistoryLimit = 10

// HandleSiteStatus handles deployment history lookups for a single site
func (s *Server) HandleSiteStatus(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "siteName")
	if err := security.ValidateSiteName(site); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	if s.TestMode || s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "deployment history not available"})
		return
	}

	latest, err := s.History.GetLatestDeployment(r.Context(), site)
	if err != nil {
		s.Logger.Error("Failed to query latest deployment", "site", site, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to query deployment history"})
		return
	}
	if latest == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no deployments recorded for site"})
		return
	}

	recent, err := s.History.GetDeploymentHistory(r.Context(), site, SiteHistoryLimit)
	if err != nil {
		s.Logger.Error("Failed to query deployment history", "site", site, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to query deployment history"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"site":               site,
		"latest_deployment":  latest,
		"recent_deployments": recent,
	})
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
	}

	if !s.TestMode && s.History != nil {
		if count, err := s.History.CountDeployments(r.Context()); err == nil {
			response["deployments_recorded"] = count
		}
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Helper functions
func stringPtr(s string) *string {
	return &s
}
