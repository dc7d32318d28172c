package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func validSignUp() SignUpRequest {
	return SignUpRequest{
		Email:       " Ada@Example.com ",
		Password:    NewSecret("correct horse"),
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Address1:    "12 Analytical Way",
		City:        "London",
		State:       "NY",
		PostalCode:  "10001",
		DateOfBirth: "1990-12-10",
		SSN:         NewSecret("1234"),
	}
}

func TestUserServiceSignUp_CreatesCustomerProfileAndSession(t *testing.T) {
	fixture, err := newServiceFixture(DefaultConfig(), newStubAggregator())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	user, session, err := fixture.svc.Users().SignUp(ctx, validSignUp())
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.ID == "" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PaymentsCustomerID != "cust-1" {
		t.Fatalf("expected customer id from url, got %q", user.PaymentsCustomerID)
	}
	if session.IsZero() || session.UserID != user.ID {
		t.Fatalf("expected session for user, got %+v", session)
	}
	if got := fixture.rail.customers[0]; got.Type != CustomerTypePersonal || got.SSN.Reveal() != "1234" {
		t.Fatalf("expected personal customer with ssn, got type=%q", got.Type)
	}
	profile, found, err := fixture.profiles.GetByUserID(ctx, user.ID)
	if err != nil || !found {
		t.Fatalf("expected stored profile, found=%v err=%v", found, err)
	}
	if profile.PaymentsCustomerURL == "" {
		t.Fatalf("expected customer url stored")
	}

	current, found, err := fixture.svc.Users().CurrentUser(ctx, session)
	if err != nil || !found {
		t.Fatalf("current user: found=%v err=%v", found, err)
	}
	if current.ID != user.ID || current.PaymentsCustomerID != "cust-1" {
		t.Fatalf("unexpected current user %+v", current)
	}

	if strings.Contains(fixture.logger.rendered(), "correct horse") {
		t.Fatalf("expected password kept out of logs")
	}
}

func TestUserServiceSignUp_ValidatesInput(t *testing.T) {
	fixture, err := newServiceFixture(DefaultConfig(), newStubAggregator())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	req := validSignUp()
	req.Email = "not-an-email"
	req.SSN = Secret{}

	_, _, err = fixture.svc.Users().SignUp(context.Background(), req)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != UserErrorBadInput || len(rich.ValidationErrors) != 2 {
		t.Fatalf("expected two field errors with %s, got %s %v", UserErrorBadInput, rich.TextCode, rich.ValidationErrors)
	}
	if fixture.rail.customerCalls != 0 {
		t.Fatalf("expected no payments customer on invalid input")
	}
}

func TestUserServiceSignUp_CustomerFailureIsIncomplete(t *testing.T) {
	fixture, err := newServiceFixture(DefaultConfig(), newStubAggregator())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.rail.customerErr = errors.New("dwolla: duplicate customer")

	_, _, err = fixture.svc.Users().SignUp(context.Background(), validSignUp())
	mapped := MapError(err)
	if mapped == nil || mapped.TextCode != UserErrorSignUpIncomplete {
		t.Fatalf("expected %s, got %v", UserErrorSignUpIncomplete, err)
	}
	if mapped.Metadata["user_id"] == "" {
		t.Fatalf("expected user id in metadata")
	}
}

func TestUserServiceSignIn(t *testing.T) {
	fixture, err := newServiceFixture(DefaultConfig(), newStubAggregator())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, _, err := fixture.svc.Users().SignUp(ctx, validSignUp()); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	user, session, err := fixture.svc.Users().SignIn(ctx, "ADA@example.com", NewSecret("correct horse"))
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.Email != "ada@example.com" || session.IsZero() {
		t.Fatalf("unexpected sign in result %+v", user)
	}

	_, _, err = fixture.svc.Users().SignIn(ctx, "ada@example.com", NewSecret("wrong password"))
	if mapped := MapError(err); mapped == nil || mapped.TextCode != UserErrorUnauthenticated {
		t.Fatalf("expected %s, got %v", UserErrorUnauthenticated, err)
	}
}

func TestUserServiceSignOut_InvalidatesSession(t *testing.T) {
	fixture, err := newServiceFixture(DefaultConfig(), newStubAggregator())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	_, session, err := fixture.svc.Users().SignUp(ctx, validSignUp())
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := fixture.svc.Users().SignOut(ctx, session); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, found, err := fixture.svc.Users().CurrentUser(ctx, session); err != nil || found {
		t.Fatalf("expected session gone, found=%v err=%v", found, err)
	}
	if err := fixture.svc.Users().SignOut(ctx, session); err != nil {
		t.Fatalf("second sign out should be a no-op: %v", err)
	}
	if _, found, err := fixture.svc.Users().CurrentUser(ctx, Session{}); err != nil || found {
		t.Fatalf("expected empty session to resolve to nobody")
	}
}

func TestCustomerIDFromURL(t *testing.T) {
	cases := map[string]string{
		"https://api-sandbox.dwolla.com/customers/abc-123":  "abc-123",
		"https://api-sandbox.dwolla.com/customers/abc-123/": "abc-123",
		"abc-123": "abc-123",
		"":        "",
	}
	for input, want := range cases {
		if got := CustomerIDFromURL(input); got != want {
			t.Fatalf("CustomerIDFromURL(%q) = %q, want %q", input, got, want)
		}
	}
}
