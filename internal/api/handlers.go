package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guard.share/config"
	"guard.share/internal/crypto"
	"guard.share/internal/models"
	"guard.share/internal/notify"
	"guard.share/internal/security"
	"guard.share/internal/store"
)

type Handler struct {
	engine   *security.Engine
	shares   store.Store
	notifier notify.Sender
	config   *config.Config
	logger   *log.Logger
}

func NewHandler(engine *security.Engine, shares store.Store, notifier notify.Sender, cfg *config.Config, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		engine:   engine,
		shares:   shares,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

type CreateRequest struct {
	OwnerID    string   `json:"owner_id"`
	Permission string   `json:"permission,omitempty"`
	TTLMinutes int      `json:"ttl_minutes,omitempty"`
	NoExpiry   bool     `json:"no_expiry,omitempty"`
	MaxAccess  int      `json:"max_access,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

type CreateResponse struct {
	Token      string            `json:"token"`
	URL        string            `json:"url"`
	Permission models.Permission `json:"permission"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	MaxAccess  *int              `json:"max_access,omitempty"`
}

type StatusResponse struct {
	Token   string `json:"token"`
	Exists  bool   `json:"exists"`
	Expired bool   `json:"expired"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Reason models.DenyReason `json:"reason,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OwnerID == "" {
		h.error(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	permission := models.Permission(req.Permission)
	if permission == "" {
		permission = models.PermissionViewOnly
	}
	if !permission.Valid() {
		h.error(w, http.StatusBadRequest, "invalid permission")
		return
	}

	origin := originKey(r)

	decision := h.engine.ValidateCreation(r.Context(), req.OwnerID, origin)
	if !decision.Admitted() {
		h.deny(w, decision)
		return
	}

	var expiresAt *time.Time
	if req.NoExpiry {
		if req.TTLMinutes > 0 {
			h.error(w, http.StatusBadRequest, "ttl_minutes and no_expiry are mutually exclusive")
			return
		}
	} else {
		ttl := clampDuration(
			time.Duration(req.TTLMinutes)*time.Minute,
			h.config.Shares.DefaultTTL,
			h.config.Shares.MaxTTL,
		)
		at := time.Now().Add(ttl)
		expiresAt = &at
	}

	share := &models.ShareRecord{
		Token:      crypto.GenerateToken(),
		OwnerID:    req.OwnerID,
		Permission: permission,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
		Active:     true,
	}
	if req.MaxAccess > 0 {
		maxAccess := clamp(req.MaxAccess, h.config.Shares.DefaultMaxAccess, h.config.Shares.MaxMaxAccess)
		share.MaxAccess = &maxAccess
	}

	if err := h.shares.Save(r.Context(), share); err != nil {
		h.logger.Printf("lvl=error msg=\"share save failed\" err=%q", err)
		h.error(w, http.StatusInternalServerError, "failed to save share")
		return
	}

	h.engine.RecordCreation(r.Context(), share.Token, origin)

	// Fire-and-forget; delivery failures are the sender's problem.
	go h.notifier.NotifyRecipients(context.WithoutCancel(r.Context()), share, req.Recipients)

	h.json(w, http.StatusCreated, CreateResponse{
		Token:      share.Token,
		URL:        h.config.Server.BaseURL + "/s/" + share.Token,
		Permission: share.Permission,
		ExpiresAt:  share.ExpiresAt,
		MaxAccess:  share.MaxAccess,
	})
}

func (h *Handler) ViewShare(w http.ResponseWriter, r *http.Request) {
	h.access(w, r, models.OperationView)
}

func (h *Handler) DownloadShare(w http.ResponseWriter, r *http.Request) {
	h.access(w, r, models.OperationDownload)
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request, op models.Operation) {
	token := chi.URLParam(r, "token")
	origin := originKey(r)

	decision := h.engine.ValidateAccess(r.Context(), token, op, origin)
	if !decision.Admitted() {
		h.deny(w, decision)
		return
	}

	// The byte stream itself comes from the storage collaborator; this
	// service answers with the admitted share metadata.
	h.json(w, http.StatusOK, decision.Record)

	h.engine.RecordAccess(r.Context(), token, op, origin)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	share, err := h.shares.Find(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.json(w, http.StatusOK, StatusResponse{Token: token, Exists: false})
			return
		}
		h.error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.json(w, http.StatusOK, StatusResponse{
		Token:   token,
		Exists:  share.Active,
		Expired: share.Expired(time.Now()),
	})
}

func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.shares.Revoke(r.Context(), token); err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type UpdatePermissionRequest struct {
	Permission string `json:"permission"`
}

func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req UpdatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	permission := models.Permission(req.Permission)
	if !permission.Valid() {
		h.error(w, http.StatusBadRequest, "invalid permission")
		return
	}

	if err := h.shares.UpdatePermission(r.Context(), token, permission); err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			h.error(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	snap, err := h.engine.Analytics(r.Context(), window)
	if err != nil {
		h.logger.Printf("lvl=error msg=\"analytics failed\" err=%q", err)
		h.error(w, http.StatusInternalServerError, "analytics unavailable")
		return
	}
	h.json(w, http.StatusOK, snap)
}

type BlacklistRequest struct {
	OriginKey     string `json:"origin_key"`
	DurationHours int    `json:"duration_hours"`
	Reason        string `json:"reason"`
}

func (h *Handler) BlacklistIP(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OriginKey == "" || req.DurationHours <= 0 {
		h.error(w, http.StatusBadRequest, "origin_key and positive duration_hours are required")
		return
	}

	h.engine.Blacklist(req.OriginKey, time.Duration(req.DurationHours)*time.Hour, req.Reason)
	h.json(w, http.StatusOK, map[string]string{"status": "blacklisted"})
}

func (h *Handler) UnblacklistIP(w http.ResponseWriter, r *http.Request) {
	origin := chi.URLParam(r, "origin")
	h.engine.Unblacklist(origin)
	h.json(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) ClearSecurityState(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearSecurityState(r.Context()); err != nil {
		h.logger.Printf("lvl=error msg=\"security clear failed\" err=%q", err)
		h.error(w, http.StatusInternalServerError, "failed to clear security state")
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

// deny maps a denial to its HTTP status. Messages stay generic: the
// reason identifier is all a requester learns.
func (h *Handler) deny(w http.ResponseWriter, d security.Decision) {
	status := http.StatusForbidden
	switch d.Reason {
	case models.DenyNotFound:
		status = http.StatusNotFound
	case models.DenyExpired, models.DenyRevoked, models.DenyAccessLimitReached:
		status = http.StatusGone
	case models.DenyRateLimited, models.DenySuspiciousActivity:
		status = http.StatusTooManyRequests
	case models.DenyInternalError:
		status = http.StatusInternalServerError
	}
	h.json(w, status, ErrorResponse{Error: "access denied", Reason: d.Reason})
}

func (h *Handler) handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.error(w, http.StatusNotFound, "share not found")
	default:
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}

// originKey is the requester's IP without the port; RealIP middleware has
// already resolved proxies.
func originKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clamp(val, defaultVal, maxVal int) int {
	if val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func clampDuration(val, defaultVal, maxVal time.Duration) time.Duration {
	if val <= 0 {
		return defaultVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
