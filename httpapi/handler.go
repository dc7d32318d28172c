package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	banklink "github.com/goliatone/go-banklink"
	banklinkcommand "github.com/goliatone/go-banklink/command"
	"github.com/goliatone/go-banklink/core"
	banklinkquery "github.com/goliatone/go-banklink/query"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
)

const maxRequestBodyBytes = 1 << 20

const DefaultCookieName = "banklink-session"

type Options struct {
	Logger         core.Logger
	ErrorMapper    func(error) *goerrors.Error
	CookieName     string
	CookieSecure   bool
	MetricsHandler http.Handler
	MeterProvider  metric.MeterProvider
	ServiceName    string
	Now            func() time.Time
}

// Handler serves the dashboard JSON API over the banklink facade.
type Handler struct {
	facade       *banklink.Facade
	logger       core.Logger
	mapError     func(error) *goerrors.Error
	cookieName   string
	cookieSecure bool
	now          func() time.Time
}

func NewHandler(facade *banklink.Facade, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	cookieName := strings.TrimSpace(opts.CookieName)
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		facade:       facade,
		logger:       logger,
		mapError:     opts.ErrorMapper,
		cookieName:   cookieName,
		cookieSecure: opts.CookieSecure,
		now:          now,
	}
}

// NewServeMux registers every route and wraps the mux with request id,
// tracing, logging and recovery middleware.
func NewServeMux(h *Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/sign-up", h.SignUp)
	mux.HandleFunc("POST /api/v1/auth/sign-in", h.SignIn)
	mux.HandleFunc("POST /api/v1/auth/sign-out", h.SignOut)
	mux.HandleFunc("GET /api/v1/me", h.requireUser(h.Me))
	mux.HandleFunc("POST /api/v1/link/token", h.requireUser(h.CreateLinkToken))
	mux.HandleFunc("POST /api/v1/link/complete", h.requireUser(h.CompleteLink))
	mux.HandleFunc("GET /api/v1/banks", h.requireUser(h.ListBanks))
	mux.HandleFunc("GET /api/v1/banks/{id}", h.requireUser(h.GetBank))
	mux.HandleFunc("GET /api/v1/banks/shared/{shareableID}", h.requireUser(h.GetSharedBank))
	mux.HandleFunc("GET /api/v1/accounts", h.requireUser(h.ListAccounts))
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	serviceName := strings.TrimSpace(opts.ServiceName)
	if serviceName == "" {
		serviceName = "banklink"
	}
	var otelOpts []otelhttp.Option
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}

	wrapped := recoveryMiddleware(h.logger, mux)
	wrapped = loggingMiddleware(h.logger, wrapped)
	wrapped = otelhttp.NewHandler(wrapped, serviceName, otelOpts...)
	return requestIDMiddleware(wrapped)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body SignUpRequest
	if !h.decode(w, r, &body) {
		return
	}
	collector := gocmd.NewResult[banklinkcommand.AuthResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.facade.Commands().SignUp.Execute(ctx, banklinkcommand.SignUpMessage{Request: core.SignUpRequest{
		Email:       strings.TrimSpace(body.Email),
		Password:    core.NewSecret(body.Password),
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Address1:    body.Address1,
		City:        body.City,
		State:       body.State,
		PostalCode:  body.PostalCode,
		DateOfBirth: body.DateOfBirth,
		SSN:         core.NewSecret(body.SSN),
	}})
	if err != nil {
		h.fail(w, r, "sign up", err)
		return
	}
	result, _ := collector.Load()
	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusCreated, toUserResponse(result.User))
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body SignInRequest
	if !h.decode(w, r, &body) {
		return
	}
	collector := gocmd.NewResult[banklinkcommand.AuthResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.facade.Commands().SignIn.Execute(ctx, banklinkcommand.SignInMessage{
		Email:    strings.TrimSpace(body.Email),
		Password: core.NewSecret(body.Password),
	})
	if err != nil {
		h.fail(w, r, "sign in", err)
		return
	}
	result, _ := collector.Load()
	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, toUserResponse(result.User))
}

// SignOut always clears the cookie, even when the identity store rejects
// the session.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(r)
	h.clearSessionCookie(w)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	err := h.facade.Commands().SignOut.Execute(r.Context(), banklinkcommand.SignOutMessage{Session: session})
	if err != nil && !isUnauthenticated(err) {
		h.fail(w, r, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserResponse(userFromContext(r.Context())))
}

func (h *Handler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	collector := gocmd.NewResult[core.LinkHandle]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.facade.Commands().CreateLinkToken.Execute(ctx, banklinkcommand.CreateLinkTokenMessage{
		User: userFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, "create link token", err)
		return
	}
	handle, _ := collector.Load()
	resp := LinkTokenResponse{LinkToken: handle.Token}
	if !handle.Expiration.IsZero() {
		resp.Expiration = handle.Expiration.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CompleteLink(w http.ResponseWriter, r *http.Request) {
	var body CompleteLinkRequest
	if !h.decode(w, r, &body) {
		return
	}
	collector := gocmd.NewResult[core.BankAccountRecord]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err := h.facade.Commands().CompleteLink.Execute(ctx, banklinkcommand.CompleteLinkMessage{
		Request: core.CompleteLinkRequest{
			PublicToken: core.NewPublicToken(strings.TrimSpace(body.PublicToken)),
			User:        userFromContext(r.Context()),
			AccountID:   strings.TrimSpace(body.AccountID),
		},
	})
	if err != nil {
		h.fail(w, r, "complete link", err)
		return
	}
	record, _ := collector.Load()
	writeJSON(w, http.StatusCreated, toBankResponse(record))
}

func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	banks, err := h.facade.Queries().ListBanks.Query(r.Context(), banklinkquery.ListBanksMessage{UserID: user.ID})
	if err != nil {
		h.fail(w, r, "list banks", err)
		return
	}
	resp := make([]BankResponse, 0, len(banks))
	for _, bank := range banks {
		resp = append(resp, toBankResponse(bank))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBank answers 404 for banks owned by someone else.
func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	bank, err := h.facade.Queries().GetBank.Query(r.Context(), banklinkquery.GetBankMessage{ID: r.PathValue("id")})
	if err == nil && bank.OwnerUserID != user.ID {
		err = goerrors.New("bank not found", goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(core.BankErrorNotFound)
	}
	if err != nil {
		h.fail(w, r, "get bank", err)
		return
	}
	writeJSON(w, http.StatusOK, toBankResponse(bank))
}

func (h *Handler) GetSharedBank(w http.ResponseWriter, r *http.Request) {
	bank, err := h.facade.Queries().GetBankByShareableID.Query(r.Context(), banklinkquery.GetBankByShareableIDMessage{
		ShareableID: r.PathValue("shareableID"),
	})
	if err != nil {
		h.fail(w, r, "get shared bank", err)
		return
	}
	writeJSON(w, http.StatusOK, SharedBankResponse{
		ShareableID:     bank.ShareableID,
		InstitutionName: bank.InstitutionName,
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	accounts, err := h.facade.Queries().ListBankAccounts.Query(r.Context(), banklinkquery.ListBankAccountsMessage{UserID: user.ID})
	if err != nil {
		h.fail(w, r, "list accounts", err)
		return
	}
	resp := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, toAccountResponse(account))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	mapped := core.MapError(err)
	if h.mapError != nil {
		if custom := h.mapError(err); custom != nil {
			mapped = custom
		}
	}
	fields := []any{"action", action, "text_code", mapped.TextCode, "path", r.URL.Path}
	if mapped.Code >= http.StatusInternalServerError || mapped.Code == 0 {
		h.logger.WithContext(r.Context()).Error("request failed", append(fields, "error", err.Error())...)
	} else {
		h.logger.WithContext(r.Context()).Warn("request rejected", fields...)
	}
	writeError(w, h.mapError, err)
}

func (h *Handler) currentUser(ctx context.Context, session core.Session) (core.UserIdentity, error) {
	return h.facade.Queries().CurrentUser.Query(ctx, banklinkquery.CurrentUserMessage{Session: session})
}

func (h *Handler) sessionFromRequest(r *http.Request) (core.Session, bool) {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return core.Session{}, false
	}
	return core.Session{Secret: core.NewSessionSecret(cookie.Value)}, true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, session core.Session) {
	if session.IsZero() {
		return
	}
	cookie := &http.Cookie{
		Name:     h.cookieName,
		Value:    session.Secret.Reveal(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
	if !session.ExpiresAt.IsZero() {
		cookie.Expires = session.ExpiresAt.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func isUnauthenticated(err error) bool {
	if errors.Is(err, core.ErrSessionInvalid) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryAuth || rich.TextCode == core.UserErrorUnauthenticated
	}
	return false
}
