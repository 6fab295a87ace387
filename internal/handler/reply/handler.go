package reply

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/site-concierge/backend/internal/model/reply"
	"github.com/zhouzirui/site-concierge/backend/pkg/utils"
)

// Handler 关键词回复目录的HTTP处理器
type Handler struct {
	catalog reply.Store
}

// New 创建回复目录处理器
func New(catalog reply.Store) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes 注册回复目录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/replies/categories", h.handleListCategories)
	r.Get("/replies/categories/{categoryID}", h.handleGetCategory)
}

type categorySummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// handleListCategories 按优先级列出关键词分类
func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.List()
	categories := make([]categorySummary, 0, len(items))
	for _, item := range items {
		categories = append(categories, categorySummary{ID: item.ID, Title: item.Title, Keywords: item.Keywords})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"fallbacks":  len(h.catalog.Fallbacks()),
	})
}

type categoryDetail struct {
	categorySummary
	Reply string `json:"reply"`
}

// handleGetCategory 返回单个分类及其固定回复
func (h *Handler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	item, ok := h.catalog.FindByID(chi.URLParam(r, "categoryID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "category not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, categoryDetail{
		categorySummary: categorySummary{ID: item.ID, Title: item.Title, Keywords: item.Keywords},
		Reply:           item.Reply,
	})
}
