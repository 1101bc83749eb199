/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  JSON structures of the API contract, decoupled from the engine's
  domain types. Amounts cross the wire as integer currency units.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

Validation happens in handlers; DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/familybank/product-engine/finance"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

type UserDTO struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	FamilyID int64  `json:"family_id"`
	Role     string `json:"role"`
	Balance  int64  `json:"balance"`
}

type CreateUserRequest struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	FamilyID int64  `json:"family_id"`
	Role     string `json:"role"`
	Balance  int64  `json:"balance"`
}

type ProductDTO struct {
	ID         int64  `json:"id"`
	GuardianID int64  `json:"guardian_id"`
	FamilyID   int64  `json:"family_id"`
	Name       string `json:"name"`
	Rate       int    `json:"rate"`
	Info       string `json:"info"`
	PeriodDays int    `json:"period_days"`
	Kind       string `json:"kind"`
}

type CreateProductRequest struct {
	GuardianID int64  `json:"guardian_id"`
	Name       string `json:"name"`
	Rate       int    `json:"rate"`
	Info       string `json:"info"`
	PeriodDays int    `json:"period_days"`
	Kind       string `json:"kind"`
}

type ApplicationDTO struct {
	ID                int64  `json:"id"`
	ApplicantID       int64  `json:"applicant_id"`
	ApplicantNickname string `json:"applicant_nickname,omitempty"`
	ProductID         int64  `json:"product_id"`
	ProductName       string `json:"product_name,omitempty"`
	Kind              string `json:"kind"`
	Amount            int64  `json:"amount"`
	Allowed           bool   `json:"allowed"`
	CardNumber        string `json:"card_number,omitempty"`
	OriginatedAt      string `json:"originated_at,omitempty"`
	ExpiresAt         string `json:"expires_at,omitempty"`
}

type ApplyRequest struct {
	ApplicantID int64 `json:"applicant_id"`
	ProductID   int64 `json:"product_id"`
	Amount      int64 `json:"amount"`
}

// ActionRequest identifies the guardian acting on an application.
type ActionRequest struct {
	GuardianID int64 `json:"guardian_id"`
}

type TransferDTO struct {
	ID            string `json:"id"`
	FromUserID    int64  `json:"from_user_id"`
	ToUserID      int64  `json:"to_user_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	ApplicationID int64  `json:"application_id"`
	At            string `json:"at"`
}

type PassResultDTO struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u finance.User) UserDTO {
	return UserDTO{
		ID:       int64(u.ID),
		Nickname: u.Nickname,
		FamilyID: int64(u.FamilyID),
		Role:     string(u.Role),
		Balance:  u.Balance.Int64(),
	}
}

func toProductDTO(p finance.FinancialProduct) ProductDTO {
	return ProductDTO{
		ID:         int64(p.ID),
		GuardianID: int64(p.GuardianID),
		FamilyID:   int64(p.FamilyID),
		Name:       p.Name,
		Rate:       p.Rate,
		Info:       p.Info,
		PeriodDays: p.PeriodDays,
		Kind:       string(p.Kind),
	}
}

func toTransferDTO(t finance.Transfer) TransferDTO {
	return TransferDTO{
		ID:            t.ID,
		FromUserID:    int64(t.FromUserID),
		ToUserID:      int64(t.ToUserID),
		Amount:        t.Amount.Int64(),
		Reason:        t.Reason,
		ApplicationID: int64(t.ApplicationID),
		At:            t.At.Format(time.RFC3339),
	}
}

func toPassResultDTO(r finance.PassResult) PassResultDTO {
	return PassResultDTO{Processed: r.Processed, Skipped: r.Skipped, Failed: r.Failed}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
