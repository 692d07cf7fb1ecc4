// Package admin — служебный JSON API: регистрация арендаторов и
// считывателей. Это единственный кусок CRUD-контракта внутри этого
// сервиса: при регистрации считывателя он же проставляет пометки
// первичной заливки. Остальной CRUD живёт в дашборде.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"turnstile/internal/directory"
	"turnstile/internal/iclock"
	"turnstile/internal/logs"
	"turnstile/internal/models"
	"turnstile/internal/push"
)

type Handler struct {
	dir  *directory.Store
	pool iclock.TenantPool
}

func New(dir *directory.Store, pool iclock.TenantPool) *Handler {
	return &Handler{dir: dir, pool: pool}
}

// Очень простой вариант: Authorization: Bearer <token>
func BearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, p) || strings.TrimPrefix(auth, p) != token {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bad or missing bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type createTenantRequest struct {
	Name     string `json:"name"`
	DBDriver string `json:"db_driver"`
	DSN      string `json:"dsn"`
	Country  string `json:"country"`
}

// POST /api/v1/tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.DSN) == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "name and dsn required", nil)
		return
	}
	t, err := h.dir.CreateTenant(r.Context(), directory.TenantInput{
		Name:     req.Name,
		DBDriver: req.DBDriver,
		DSN:      req.DSN,
		Country:  req.Country,
	})
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
		return
	}
	models.WriteJSON(w, http.StatusCreated, t)
}

type createDeviceRequest struct {
	SN       string `json:"sn"`
	TenantID uint   `json:"tenant_id"`
	BranchID uint   `json:"branch_id"`
	Name     string `json:"name"`
}

// POST /api/v1/devices — регистрация считывателя: слот назначается
// автоматически, затем вся база арендатора помечается на заливку в него.
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	dev, err := h.dir.RegisterDevice(r.Context(), directory.RegisterDeviceInput{
		SN:       req.SN,
		TenantID: req.TenantID,
		BranchID: req.BranchID,
		Name:     req.Name,
	})
	switch {
	case errors.Is(err, directory.ErrNoTenant):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "tenant not found", nil)
		return
	case errors.Is(err, directory.ErrSlotsFull):
		models.WriteProblem(w, http.StatusConflict, "Conflict", "tenant already has the maximum number of readers", nil)
		return
	case err != nil:
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}

	// первичная заливка нового слота (best-effort: не найдём БД — слот
	// останется пустым до первых правок в CRUD)
	tenant, err := h.dir.TenantByID(r.Context(), dev.TenantID)
	if err == nil {
		if tdb, perr := h.pool.Get(r.Context(), tenant); perr == nil {
			if merr := push.MarkAllForSlot(r.Context(), tdb, dev.Slot); merr != nil {
				logs.Logger.Errorf("admin: initial provisioning slot=%d tenant=%d: %v", dev.Slot, dev.TenantID, merr)
			}
		} else {
			logs.Logger.Errorf("admin: tenant %d db: %v", dev.TenantID, perr)
		}
	}

	models.WriteJSON(w, http.StatusCreated, dev)
}

// GET /api/v1/devices?tenant=N
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	var tenantID uint
	if s := r.URL.Query().Get("tenant"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "tenant must be numeric", nil)
			return
		}
		tenantID = uint(n)
	}
	rows, err := h.dir.ListDevices(r.Context(), tenantID)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, rows)
}

func Attach(r *mux.Router, h *Handler, token string) {
	sub := r.PathPrefix("/api/v1").Subrouter()
	sub.Use(BearerAuth(token))
	sub.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	sub.HandleFunc("/devices", h.CreateDevice).Methods("POST")
	sub.HandleFunc("/devices", h.ListDevices).Methods("GET")
}
