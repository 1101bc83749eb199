/*
handlers.go - HTTP handlers for the family banking product engine

PURPOSE:
  Exposes the engine via a thin REST layer: JSON in, JSON out, all
  business rules delegated to finance.Workflow and finance.Settler.

ENDPOINTS:
  Users:
    POST /api/users                    Create user (bootstrap)
    GET  /api/users/{id}               Get user with balance
    GET  /api/users/{id}/transfers     Journal entries touching the user

  Products:
    POST /api/products                 Register a product (guardian only)
    GET  /api/products/family/{id}     List a family's products

  Applications:
    POST /api/applications             Apply for a product
    GET  /api/applications/pending/family/{id}
    GET  /api/applications/pending/product/{id}
    GET  /api/applications/user/{nickname}
    PUT  /api/applications/{id}/allow
    PUT  /api/applications/{id}/refuse

  Admin:
    POST /api/admin/accrue             Run the interest pass now
    POST /api/admin/settle             Run the expiry pass now

ERROR HANDLING:
  Engine errors map onto HTTP status via their classification:
  404 not found, 403 cross-family, 409 conflict/lost race, 400 bad
  input, 500 otherwise.

SECURITY NOTE:
  There is no authentication; the acting guardian arrives in the
  request body. The dependent-role guard is still enforced here, at
  the boundary, before the workflow is invoked.
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/familybank/product-engine/finance"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    finance.TxStore
	Workflow *finance.Workflow
	Settler  *finance.Settler
}

func NewHandler(store finance.TxStore, wf *finance.Workflow, settler *finance.Settler) *Handler {
	return &Handler{Store: store, Workflow: wf, Settler: settler}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	role := finance.Role(req.Role)
	if role != finance.RoleGuardian && role != finance.RoleDependent {
		writeError(w, http.StatusBadRequest, "Role must be guardian or dependent", nil)
		return
	}

	u := finance.User{
		ID:       finance.UserID(req.ID),
		Nickname: req.Nickname,
		FamilyID: finance.FamilyID(req.FamilyID),
		Role:     role,
		Balance:  finance.NewMoney(req.Balance),
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}
	u, err := h.Store.GetUser(r.Context(), finance.UserID(id))
	if err != nil {
		writeEngineError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}
	transfers, err := h.Store.TransfersByUser(r.Context(), finance.UserID(id))
	if err != nil {
		writeEngineError(w, "Failed to list transfers", err)
		return
	}

	dtos := make([]TransferDTO, len(transfers))
	for i, t := range transfers {
		dtos[i] = toTransferDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind := finance.ProductKind(req.Kind)
	if kind != finance.KindLoan && kind != finance.KindSavings {
		writeError(w, http.StatusBadRequest, "Kind must be loan or savings", nil)
		return
	}
	if req.Rate < 0 || req.PeriodDays <= 0 {
		writeError(w, http.StatusBadRequest, "Rate must be non-negative and period positive", nil)
		return
	}

	guardian, err := h.Store.GetUser(r.Context(), finance.UserID(req.GuardianID))
	if err != nil {
		writeEngineError(w, "Failed to load guardian", err)
		return
	}
	if !finance.CanApproveFamilyFinancials(guardian) {
		writeError(w, http.StatusForbidden, "Only a guardian may register products", nil)
		return
	}

	p := finance.FinancialProduct{
		GuardianID: guardian.ID,
		FamilyID:   guardian.FamilyID,
		Name:       req.Name,
		Rate:       req.Rate,
		Info:       req.Info,
		PeriodDays: req.PeriodDays,
		Kind:       kind,
	}
	p.ID, err = h.Store.CreateProduct(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

func (h *Handler) ListFamilyProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid family id", err)
		return
	}
	products, err := h.Store.ListProductsByFamily(r.Context(), finance.FamilyID(id))
	if err != nil {
		writeEngineError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	app, err := h.Workflow.Apply(r.Context(),
		finance.UserID(req.ApplicantID),
		finance.ProductID(req.ProductID),
		finance.NewMoney(req.Amount))
	if err != nil {
		writeEngineError(w, "Failed to apply", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toApplicationDTO(r, app))
}

func (h *Handler) ListPendingByFamily(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid family id", err)
		return
	}
	apps, err := h.Workflow.PendingByFamily(r.Context(), finance.FamilyID(id))
	if err != nil {
		writeEngineError(w, "Failed to list pending applications", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTOs(r, apps))
}

func (h *Handler) ListPendingByProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product id", err)
		return
	}
	apps, err := h.Workflow.PendingByProduct(r.Context(), finance.ProductID(id))
	if err != nil {
		writeEngineError(w, "Failed to list pending applications", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTOs(r, apps))
}

func (h *Handler) ListByNickname(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")
	apps, err := h.Workflow.ByNickname(r.Context(), nickname)
	if err != nil {
		writeEngineError(w, "Failed to list applications", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTOs(r, apps))
}

func (h *Handler) Allow(w http.ResponseWriter, r *http.Request) {
	id, guardian, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	app, err := h.Workflow.Allow(r.Context(), id, guardian.ID)
	if err != nil {
		writeEngineError(w, "Failed to allow application", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toApplicationDTO(r, app))
}

func (h *Handler) Refuse(w http.ResponseWriter, r *http.Request) {
	id, guardian, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	if err := h.Workflow.Refuse(r.Context(), id, guardian.ID); err != nil {
		writeEngineError(w, "Failed to refuse application", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refused"})
}

// decodeAction parses the application id and loads the acting user,
// enforcing the dependent-role guard at the boundary.
func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request) (finance.ApplicationID, finance.User, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid application id", err)
		return 0, finance.User{}, false
	}
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return 0, finance.User{}, false
	}
	actor, err := h.Store.GetUser(r.Context(), finance.UserID(req.GuardianID))
	if err != nil {
		writeEngineError(w, "Failed to load acting user", err)
		return 0, finance.User{}, false
	}
	if !finance.CanApproveFamilyFinancials(actor) {
		writeError(w, http.StatusForbidden, "A dependent may not allow or refuse applications", nil)
		return 0, finance.User{}, false
	}
	return finance.ApplicationID(id), actor, true
}

// =============================================================================
// ADMIN HANDLERS - Manual batch pass triggers
// =============================================================================

func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	res, err := h.Settler.AccrueInterest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Interest accrual pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPassResultDTO(res))
}

func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	res, err := h.Settler.SettleExpired(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Expiry settlement pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPassResultDTO(res))
}

// =============================================================================
// HELPERS
// =============================================================================

// toApplicationDTO enriches the record with the applicant's nickname
// and the product name, best-effort.
func (h *Handler) toApplicationDTO(r *http.Request, a finance.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:           int64(a.ID),
		ApplicantID:  int64(a.ApplicantID),
		ProductID:    int64(a.ProductID),
		Kind:         string(a.Kind),
		Amount:       a.Amount.Int64(),
		Allowed:      a.Allowed,
		CardNumber:   a.CardNumber,
		OriginatedAt: formatDate(a.OriginatedAt),
		ExpiresAt:    formatDate(a.ExpiresAt),
	}
	if u, err := h.Store.GetUser(r.Context(), a.ApplicantID); err == nil {
		dto.ApplicantNickname = u.Nickname
	}
	if p, err := h.Store.GetProduct(r.Context(), a.ProductID); err == nil {
		dto.ProductName = p.Name
	}
	return dto
}

func (h *Handler) toApplicationDTOs(r *http.Request, apps []finance.Application) []ApplicationDTO {
	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = h.toApplicationDTO(r, a)
	}
	return dtos
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error classes onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case finance.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case finance.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case finance.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
