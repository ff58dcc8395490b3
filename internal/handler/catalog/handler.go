// Package catalog serves read views over the content catalog and the
// registration of uploaded assets.
package catalog

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agusgarcia3007/learnbase/backend/internal/middleware"
	"github.com/agusgarcia3007/learnbase/backend/internal/model/course"
	"github.com/agusgarcia3007/learnbase/backend/internal/model/user"
	"github.com/agusgarcia3007/learnbase/backend/internal/store"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
	"github.com/agusgarcia3007/learnbase/backend/pkg/utils"
)

// Handler 内容目录的HTTP处理器
type Handler struct {
	repo store.Repository
}

// New 创建目录处理器
func New(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes 注册目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/search", h.handleSearch)
	r.Get("/courses/{courseID}", h.handleGetCourse)
	r.Get("/modules/{moduleID}", h.handleGetModule)
	r.Get("/quizzes/{quizID}", h.handleGetQuiz)
	r.With(middleware.RequireElevated).Post("/assets", h.handlePutAsset)
}

// CourseView is a course with its modules resolved.
type CourseView struct {
	*course.Course
	Modules []*course.Module `json:"modules"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	query := r.URL.Query()
	q := store.SearchQuery{Text: strings.TrimSpace(query.Get("q"))}
	if raw := strings.TrimSpace(query.Get("types")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			typ := protocol.ContentType(strings.TrimSpace(part))
			if !typ.Valid() {
				utils.RespondError(w, http.StatusBadRequest, "unknown content type: "+string(typ))
				return
			}
			q.Types = append(q.Types, typ)
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	assets, err := h.repo.SearchAssets(r.Context(), principal.TenantID, q)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	out := protocol.SearchContentOutput{Results: make([]protocol.ContentHit, 0, len(assets))}
	for _, a := range assets {
		out.Results = append(out.Results, a.Hit())
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	c, err := h.repo.GetCourse(r.Context(), principal.TenantID, chi.URLParam(r, "courseID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	view := CourseView{Course: c, Modules: make([]*course.Module, 0, len(c.ModuleIDs))}
	for _, id := range c.ModuleIDs {
		m, err := h.repo.GetModule(r.Context(), principal.TenantID, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		view.Modules = append(view.Modules, m)
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetModule(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	m, err := h.repo.GetModule(r.Context(), principal.TenantID, chi.URLParam(r, "moduleID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, m)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	q, err := h.repo.GetQuiz(r.Context(), principal.TenantID, chi.URLParam(r, "quizID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, q)
}

// handlePutAsset 登记已上传的视频或文档
func (h *Handler) handlePutAsset(w http.ResponseWriter, r *http.Request) {
	principal, ok := user.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var payload struct {
		ID          string               `json:"id"`
		Type        protocol.ContentType `json:"type"`
		Title       string               `json:"title"`
		Description string               `json:"description"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Type != protocol.ContentVideo && payload.Type != protocol.ContentDocument {
		utils.RespondError(w, http.StatusBadRequest, "type must be video or document")
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		utils.RespondError(w, http.StatusBadRequest, "title is required")
		return
	}

	asset := &course.Asset{
		ID:          payload.ID,
		TenantID:    principal.TenantID,
		Type:        payload.Type,
		Title:       strings.TrimSpace(payload.Title),
		Description: payload.Description,
		Status:      protocol.StatusPublished,
	}
	if err := h.repo.PutAsset(r.Context(), asset); err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, asset.Hit())
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrTenantRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[catalog] store error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
