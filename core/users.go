package core

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const CustomerTypePersonal = "personal"

type SignUpRequest struct {
	Email       string
	Password    Secret
	FirstName   string
	LastName    string
	Address1    string
	City        string
	State       string
	PostalCode  string
	DateOfBirth string
	SSN         Secret
}

func (r SignUpRequest) Validate() error {
	var fields []goerrors.FieldError
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		fields = append(fields, goerrors.FieldError{Field: "email", Message: "must be a valid email address"})
	}
	if len(r.Password.Reveal()) < 8 {
		fields = append(fields, goerrors.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	required := map[string]string{
		"first_name":    r.FirstName,
		"last_name":     r.LastName,
		"address1":      r.Address1,
		"city":          r.City,
		"state":         r.State,
		"postal_code":   r.PostalCode,
		"date_of_birth": r.DateOfBirth,
	}
	for _, field := range []string{"first_name", "last_name", "address1", "city", "state", "postal_code", "date_of_birth"} {
		if strings.TrimSpace(required[field]) == "" {
			fields = append(fields, goerrors.FieldError{Field: field, Message: "is required"})
		}
	}
	if r.SSN.IsZero() {
		fields = append(fields, goerrors.FieldError{Field: "ssn", Message: "is required"})
	}
	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("user: sign-up request is invalid", fields...).
		WithCode(400).
		WithTextCode(UserErrorBadInput)
}

// UserService covers sign-up, sign-in and session lookup. The session is
// always passed in explicitly.
type UserService struct {
	identity    IdentityStore
	profiles    UserProfileStore
	rail        PaymentsRailClient
	sanitizer   NameSanitizer
	now         func() time.Time
	observation observer
}

func (s *UserService) SignUp(ctx context.Context, req SignUpRequest) (user UserIdentity, session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		if user.ID != "" {
			fields["user_id"] = user.ID
		}
		s.observation.observeOperation(ctx, startedAt, "user_sign_up", err, fields)
	}()

	if err = s.ready(); err != nil {
		return UserIdentity{}, Session{}, err
	}
	if err = req.Validate(); err != nil {
		return UserIdentity{}, Session{}, err
	}

	firstName := s.sanitizer.Sanitize(req.FirstName)
	lastName := s.sanitizer.Sanitize(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	account, err := s.identity.CreateAccount(ctx, NewAccount{
		Email:    email,
		Password: req.Password,
		Name:     strings.TrimSpace(firstName + " " + lastName),
	})
	if err != nil {
		err = identityError(err, "user: create account failed")
		return UserIdentity{}, Session{}, err
	}
	fields["user_id"] = account.ID

	customer, err := s.rail.CreateCustomer(ctx, CustomerProfile{
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		Address1:    strings.TrimSpace(req.Address1),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		DateOfBirth: strings.TrimSpace(req.DateOfBirth),
		SSN:         req.SSN,
		Type:        CustomerTypePersonal,
	})
	if err != nil {
		err = signUpIncomplete(err, account.ID, "user: create payments customer failed")
		return UserIdentity{}, Session{}, err
	}
	if customer.ID == "" {
		customer.ID = CustomerIDFromURL(customer.URL)
	}

	profile, err := s.profiles.Save(ctx, UserProfile{
		UserID:              account.ID,
		Email:               email,
		FirstName:           firstName,
		LastName:            lastName,
		Address1:            strings.TrimSpace(req.Address1),
		City:                strings.TrimSpace(req.City),
		State:               strings.TrimSpace(req.State),
		PostalCode:          strings.TrimSpace(req.PostalCode),
		PaymentsCustomerID:  customer.ID,
		PaymentsCustomerURL: customer.URL,
		CreatedAt:           s.now(),
	})
	if err != nil {
		err = signUpIncomplete(err, account.ID, "user: save profile failed")
		return UserIdentity{}, Session{}, err
	}

	session, err = s.identity.CreateSession(ctx, email, req.Password)
	if err != nil {
		err = identityError(err, "user: create session failed")
		return UserIdentity{}, Session{}, err
	}
	return profile.Identity(account), session, nil
}

func (s *UserService) SignIn(ctx context.Context, email string, password Secret) (user UserIdentity, session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		if user.ID != "" {
			fields["user_id"] = user.ID
		}
		s.observation.observeOperation(ctx, startedAt, "user_sign_in", err, fields)
	}()

	if err = s.ready(); err != nil {
		return UserIdentity{}, Session{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password.IsZero() {
		err = newServiceError("user: email and password are required", goerrors.CategoryBadInput, UserErrorBadInput)
		return UserIdentity{}, Session{}, err
	}

	session, err = s.identity.CreateSession(ctx, email, password)
	if err != nil {
		err = identityError(err, "user: sign-in failed")
		return UserIdentity{}, Session{}, err
	}
	user, found, err := s.resolve(ctx, session)
	if err != nil {
		return UserIdentity{}, Session{}, err
	}
	if !found {
		err = newServiceError("user: session was not accepted", goerrors.CategoryAuth, UserErrorUnauthenticated)
		return UserIdentity{}, Session{}, err
	}
	return user, session, nil
}

// CurrentUser reports found=false for an empty or rejected session.
func (s *UserService) CurrentUser(ctx context.Context, session Session) (UserIdentity, bool, error) {
	if err := s.ready(); err != nil {
		return UserIdentity{}, false, err
	}
	if session.IsZero() {
		return UserIdentity{}, false, nil
	}
	return s.resolve(ctx, session)
}

func (s *UserService) SignOut(ctx context.Context, session Session) (err error) {
	startedAt := time.Now()
	defer func() {
		s.observation.observeOperation(ctx, startedAt, "user_sign_out", err, map[string]any{"user_id": session.UserID})
	}()
	if err = s.ready(); err != nil {
		return err
	}
	if session.IsZero() {
		return nil
	}
	if err = s.identity.DeleteSession(ctx, session); err != nil && !errors.Is(err, ErrSessionInvalid) {
		err = identityError(err, "user: delete session failed")
		return err
	}
	return nil
}

func (s *UserService) resolve(ctx context.Context, session Session) (UserIdentity, bool, error) {
	account, err := s.identity.CurrentUser(ctx, session)
	if errors.Is(err, ErrSessionInvalid) {
		return UserIdentity{}, false, nil
	}
	if err != nil {
		return UserIdentity{}, false, identityError(err, "user: session lookup failed")
	}
	profile, found, err := s.profiles.GetByUserID(ctx, account.ID)
	if err != nil {
		return UserIdentity{}, false, wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorInternal, "user: load profile failed")
	}
	if !found {
		return UserIdentity{}, false, newServiceError("user: profile not found", goerrors.CategoryNotFound, UserErrorProfileNotFound)
	}
	return profile.Identity(account), true, nil
}

func (s *UserService) ready() error {
	if s == nil || s.identity == nil || s.profiles == nil || s.rail == nil {
		return newServiceError("user: identity store, profile store and payments rail are required", goerrors.CategoryInternal, ServiceErrorInternal)
	}
	return nil
}

// CustomerIDFromURL returns the last path segment of a payments customer URL.
func CustomerIDFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		raw = parsed.Path
	}
	segment := path.Base(strings.TrimSuffix(raw, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	return segment
}

func identityError(err error, message string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Category == goerrors.CategoryAuth {
		return wrapServiceError(err, goerrors.CategoryAuth, UserErrorUnauthenticated, message)
	}
	if errors.Is(err, ErrSessionInvalid) {
		return wrapServiceError(err, goerrors.CategoryAuth, UserErrorUnauthenticated, message)
	}
	if rich != nil && (rich.Category == goerrors.CategoryBadInput || rich.Category == goerrors.CategoryConflict) {
		return wrapServiceError(err, rich.Category, UserErrorBadInput, message)
	}
	return wrapServiceError(err, goerrors.CategoryExternal, UserErrorIdentityUnavailable, message)
}

func signUpIncomplete(err error, userID string, message string) error {
	return wrapServiceError(err, goerrors.CategoryExternal, UserErrorSignUpIncomplete, message).
		WithMetadata(map[string]any{"user_id": userID})
}
