package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/claroledger/audittrail/internal/audit"
	"github.com/claroledger/audittrail/internal/auth"
)

// POST /audit/entries
// Accepts the collaborator's recordMutation call:
//
//	{ accountId, actorId, actorName, action, entityKind, entityId, detail, origin?, ts? }
//
// When the request carries a validated bearer token, actor identity and
// account come from the token and override the body fields.
func (s *Server) handleRecordMutation(w http.ResponseWriter, r *http.Request) {
	var req audit.MutationRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if actor := auth.FromContext(r.Context()); actor != nil {
		req.ActorID = actor.ID
		if actor.Name != "" {
			req.ActorName = actor.Name
		}
		if actor.AccountID != "" {
			req.AccountID = actor.AccountID
		}
	}

	e, err := s.svc.RecordMutation(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrAccountRequired),
			errors.Is(err, audit.ErrActorRequired),
			errors.Is(err, audit.ErrInvalidAction):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "append audit entry: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// 201: the entry is durably part of the chain once this returns.
	writeJSON(w, http.StatusCreated, e)
}

// GET /audit/entries/{id}
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	e, err := s.svc.GetEntry(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "get entry: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GET /audit/accounts/{accountID}/chain
// Raw stored chain, timestamp ascending, no verdicts and no filtering.
func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	entries, err := s.svc.GetChain(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, audit.ErrAccountRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "get chain: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /audit/accounts/{accountID}/chain/verified?filtered=true
// Verified chain, most recent first. filtered=true applies the
// grace-period display rule; verification itself always covers the full
// chain.
func (s *Server) handleGetVerifiedChain(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	filtered := false
	if v := r.URL.Query().Get("filtered"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filtered = b
		}
	}

	var (
		verified []audit.VerifiedEntry
		err      error
	)
	if filtered {
		verified, err = s.svc.GetVerifiedChainFiltered(r.Context(), accountID)
	} else {
		verified, err = s.svc.GetVerifiedChain(r.Context(), accountID)
	}
	if err != nil {
		if errors.Is(err, audit.ErrAccountRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "verify chain: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if verified == nil {
		verified = []audit.VerifiedEntry{}
	}
	writeJSON(w, http.StatusOK, verified)
}

// GET /audit/accounts/{accountID}/export.csv
// Self-contained verified report for handing to an accountant or
// regulator. Any failure is surfaced before bytes are written; no partial
// file leaves this handler.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	b, err := s.svc.ExportVerifiedCSV(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, audit.ErrAccountRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "export: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+accountID+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
