package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rhsenso/erp/internal/service"
	"github.com/rhsenso/erp/internal/util"
)

type userStatusRequest struct {
	Ativo *bool `json:"ativo" validate:"required"`
}

// listUsersQuery é a query de ListUsers; ativo chega normalizado em maiúsculas.
type listUsersQuery struct {
	Search   string `json:"search" validate:"max=100"`
	Ativo    string `json:"ativo" validate:"omitempty,oneof=S N TRUE FALSE"`
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"pageSize" validate:"omitempty,min=1"`
}

func (q listUsersQuery) filter() service.UserFilter {
	f := service.UserFilter{Search: q.Search, Page: q.Page, PageSize: q.PageSize}
	if q.Ativo != "" {
		ativo := q.Ativo == "S" || q.Ativo == "TRUE"
		f.Ativo = &ativo
	}
	return f
}

// ListUsers pagina tuse1. Query: search, ativo (true/false ou S/N), page, pageSize.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	errs := map[string][]string{}
	query := listUsersQuery{
		Search:   strings.TrimSpace(values.Get("search")),
		Ativo:    strings.ToUpper(strings.TrimSpace(values.Get("ativo"))),
		Page:     queryInt(values.Get("page"), "page", errs),
		PageSize: queryInt(values.Get("pageSize"), "pageSize", errs),
	}
	for field, msgs := range util.Validate(query) {
		errs[field] = append(errs[field], msgs...)
	}
	if len(errs) > 0 {
		WriteValidation(w, errs)
		return
	}

	page, err := h.users.List(r.Context(), query.filter())
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível listar usuários")
		return
	}
	WriteJSON(w, http.StatusOK, "", page)
}

// queryInt converte o parâmetro; vazio vale 0 e texto não numérico vira erro do campo.
func queryInt(v, field string, errs map[string][]string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		errs[field] = append(errs[field], field+" deve ser numérico")
		return 0
	}
	return n
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	detail, err := h.users.Get(r.Context(), chi.URLParam(r, "cdUsuario"))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar usuário")
		return
	}
	WriteJSON(w, http.StatusOK, "", detail)
}

func (h *Handler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	grants, err := h.users.Permissions(r.Context(), chi.URLParam(r, "cdUsuario"), r.URL.Query().Get("sistema"))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível carregar permissões")
		return
	}
	WriteJSON(w, http.StatusOK, "", grants)
}

// SetUserStatus ativa ou desativa o usuário (tuse1.flativo).
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var payload userStatusRequest
	if !decodeAndValidate(w, r, &payload) {
		return
	}

	summary, err := h.users.SetActive(r.Context(), chi.URLParam(r, "cdUsuario"), *payload.Ativo, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível alterar o usuário")
		return
	}

	message := "usuário ativado"
	if !summary.Ativo {
		message = "usuário desativado"
	}
	WriteJSON(w, http.StatusOK, message, summary)
}

func (h *Handler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.users.RevokeSessions(r.Context(), chi.URLParam(r, "cdUsuario"), requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível revogar sessões")
		return
	}
	WriteJSON(w, http.StatusOK, "sessões revogadas", map[string]int{"revogadas": n})
}

func (h *Handler) ListSistemas(w http.ResponseWriter, r *http.Request) {
	sistemas, err := h.catalog.Sistemas(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível listar sistemas")
		return
	}
	WriteJSON(w, http.StatusOK, "", sistemas)
}

func (h *Handler) ListFuncoes(w http.ResponseWriter, r *http.Request) {
	funcoes, err := h.catalog.Funcoes(r.Context(), chi.URLParam(r, "cdSistema"))
	if err != nil {
		h.writeServiceError(w, r, err, "não foi possível listar funções")
		return
	}
	WriteJSON(w, http.StatusOK, "", funcoes)
}
