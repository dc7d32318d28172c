package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goliatone/go-banklink/core"
	goerrors "github.com/goliatone/go-errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"text_code":"SERVICE_INTERNAL_ERROR","message":"internal server error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errorBody struct {
	TextCode         string                `json:"text_code"`
	Message          string                `json:"message"`
	Category         string                `json:"category,omitempty"`
	Recovery         string                `json:"recovery,omitempty"`
	ValidationErrors []goerrors.FieldError `json:"validation_errors,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError renders err as an envelope. Link failures carry their user
// facing message and recovery hint; other errors go through mapper.
func writeError(w http.ResponseWriter, mapper func(error) *goerrors.Error, err error) {
	var failure *core.Failure
	if errors.As(err, &failure) && failure != nil {
		body := errorBody{
			TextCode: failure.TextCode(),
			Message:  failure.UserMessage(),
			Recovery: string(failure.Recovery()),
		}
		if failure.Err != nil {
			body.Category = string(failure.Err.Category)
		}
		writeJSON(w, failure.HTTPStatus(), errorResponse{Error: body})
		return
	}

	if mapper == nil {
		mapper = core.MapError
	}
	mapped := mapper(err)
	if mapped == nil {
		mapped = core.MapError(err)
	}
	status := mapped.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		TextCode:         mapped.TextCode,
		Message:          mapped.Message,
		Category:         string(mapped.Category),
		ValidationErrors: mapped.ValidationErrors,
	}
	if status >= http.StatusInternalServerError {
		body.Message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		TextCode: core.ServiceErrorBadInput,
		Message:  message,
		Category: string(goerrors.CategoryBadInput),
	}})
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
		TextCode: core.UserErrorUnauthenticated,
		Message:  "sign in required",
		Category: string(goerrors.CategoryAuth),
	}})
}

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	DateOfBirth string `json:"date_of_birth"`
	SSN         string `json:"ssn"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CompleteLinkRequest struct {
	PublicToken string `json:"public_token"`
	AccountID   string `json:"account_id,omitempty"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration,omitempty"`
}

// BankResponse never carries the access token.
type BankResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	ItemID           string `json:"item_id"`
	ShareableID      string `json:"shareable_id"`
	FundingSourceRef string `json:"funding_source_ref"`
	InstitutionName  string `json:"institution_name,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// SharedBankResponse is what any signed-in user sees for a shareable id.
type SharedBankResponse struct {
	ShareableID     string `json:"shareable_id"`
	InstitutionName string `json:"institution_name,omitempty"`
}

type AccountResponse struct {
	BankID           string `json:"bank_id"`
	ShareableID      string `json:"shareable_id"`
	InstitutionName  string `json:"institution_name,omitempty"`
	AccountID        string `json:"account_id"`
	Name             string `json:"name"`
	OfficialName     string `json:"official_name,omitempty"`
	Mask             string `json:"mask,omitempty"`
	Type             string `json:"type"`
	Subtype          string `json:"subtype,omitempty"`
	AvailableBalance string `json:"available_balance"`
	CurrentBalance   string `json:"current_balance"`
	CurrencyCode     string `json:"currency_code,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toUserResponse(user core.UserIdentity) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.Name(),
		FirstName:   user.FirstName,
		LastName:    user.LastName,
	}
}

func toBankResponse(record core.BankAccountRecord) BankResponse {
	resp := BankResponse{
		ID:               record.ID,
		AccountID:        record.AccountID,
		ItemID:           record.ItemID,
		ShareableID:      record.ShareableID,
		FundingSourceRef: record.FundingSourceRef,
		InstitutionName:  record.InstitutionName,
	}
	if !record.CreatedAt.IsZero() {
		resp.CreatedAt = record.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toAccountResponse(linked core.LinkedAccount) AccountResponse {
	account := linked.Account
	return AccountResponse{
		BankID:           linked.BankID,
		ShareableID:      linked.ShareableID,
		InstitutionName:  linked.InstitutionName,
		AccountID:        account.ID,
		Name:             account.Name,
		OfficialName:     account.OfficialName,
		Mask:             account.Mask,
		Type:             account.Type,
		Subtype:          account.Subtype,
		AvailableBalance: account.AvailableBalance.StringFixed(2),
		CurrentBalance:   account.CurrentBalance.StringFixed(2),
		CurrencyCode:     account.CurrencyCode,
	}
}
