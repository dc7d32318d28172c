package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type stubAggregator struct {
	mu sync.Mutex

	accounts       []AccountSummary
	handleErr      error
	exchangeErr    error
	listErr        error
	processorErr   error
	consumed       map[string]bool
	lastHandleReq  LinkHandleRequest
	lastRail       string
	handleCalls    int
	exchangeCalls  int
	listCalls      int
	processorCalls int
}

func newStubAggregator(accounts ...AccountSummary) *stubAggregator {
	return &stubAggregator{accounts: accounts, consumed: map[string]bool{}}
}

func (a *stubAggregator) CreateLinkHandle(_ context.Context, req LinkHandleRequest) (LinkHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handleCalls++
	a.lastHandleReq = req
	if a.handleErr != nil {
		return LinkHandle{}, a.handleErr
	}
	return LinkHandle{
		Token:      "link-sandbox-" + req.UserID,
		Expiration: time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC),
		RequestID:  "req_1",
	}, nil
}

func (a *stubAggregator) ExchangePublicToken(_ context.Context, token PublicToken) (ItemAccess, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exchangeCalls++
	if a.exchangeErr != nil {
		return ItemAccess{}, a.exchangeErr
	}
	if a.consumed[token.Reveal()] {
		return ItemAccess{}, fmt.Errorf("stub aggregator: INVALID_PUBLIC_TOKEN: %w", ErrPublicTokenConsumed)
	}
	a.consumed[token.Reveal()] = true
	return ItemAccess{
		AccessToken: NewAccessToken("access-sandbox-" + token.Reveal()),
		ItemID:      fmt.Sprintf("item_%d", a.exchangeCalls),
	}, nil
}

func (a *stubAggregator) ListAccounts(_ context.Context, token AccessToken) ([]AccountSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	if token.IsZero() {
		return nil, fmt.Errorf("stub aggregator: access token is required")
	}
	return append([]AccountSummary(nil), a.accounts...), nil
}

func (a *stubAggregator) CreateProcessorToken(_ context.Context, token AccessToken, accountID string, rail string) (ProcessorToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processorCalls++
	a.lastRail = rail
	if a.processorErr != nil {
		return ProcessorToken{}, a.processorErr
	}
	return NewProcessorToken("processor-sandbox-" + accountID), nil
}

func (a *stubAggregator) calls() (int, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exchangeCalls, a.listCalls, a.processorCalls
}

type stubRail struct {
	mu sync.Mutex

	customerErr   error
	fundingErr    error
	customers     []CustomerProfile
	fundingReqs   []FundingSourceRequest
	customerCalls int
	fundingCalls  int
}

func (r *stubRail) CreateCustomer(_ context.Context, profile CustomerProfile) (PaymentsCustomer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customerCalls++
	if r.customerErr != nil {
		return PaymentsCustomer{}, r.customerErr
	}
	r.customers = append(r.customers, profile)
	return PaymentsCustomer{URL: fmt.Sprintf("https://api-sandbox.dwolla.com/customers/cust-%d", r.customerCalls)}, nil
}

func (r *stubRail) RegisterFundingSource(_ context.Context, req FundingSourceRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fundingCalls++
	r.fundingReqs = append(r.fundingReqs, req)
	if r.fundingErr != nil {
		return "", r.fundingErr
	}
	return fmt.Sprintf("https://api-sandbox.dwolla.com/funding-sources/fs-%d", r.fundingCalls), nil
}

func (r *stubRail) fundingCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fundingCalls
}

type memoryBankStore struct {
	mu        sync.Mutex
	next      int
	records   []BankAccountRecord
	saveErr   error
	saveCalls int
}

func newMemoryBankStore(seed ...BankAccountRecord) *memoryBankStore {
	return &memoryBankStore{records: append([]BankAccountRecord(nil), seed...)}
}

func (s *memoryBankStore) Save(_ context.Context, record BankAccountRecord) (BankAccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return BankAccountRecord{}, s.saveErr
	}
	s.next++
	record.ID = fmt.Sprintf("bank_%d", s.next)
	s.records = append(s.records, record)
	return record, nil
}

func (s *memoryBankStore) ListByUser(_ context.Context, userID string) ([]BankAccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []BankAccountRecord{}
	for _, record := range s.records {
		if record.OwnerUserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *memoryBankStore) GetByID(_ context.Context, id string) (BankAccountRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record, true, nil
		}
	}
	return BankAccountRecord{}, false, nil
}

func (s *memoryBankStore) GetByAccountID(_ context.Context, accountID string) (BankAccountRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []BankAccountRecord{}
	for _, record := range s.records {
		if record.AccountID == accountID {
			matches = append(matches, record)
		}
	}
	if len(matches) != 1 {
		return BankAccountRecord{}, false, nil
	}
	return matches[0], true, nil
}

func (s *memoryBankStore) snapshot() []BankAccountRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BankAccountRecord(nil), s.records...)
}

type memoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]UserProfile
	saveErr  error
}

func newMemoryProfileStore() *memoryProfileStore {
	return &memoryProfileStore{profiles: map[string]UserProfile{}}
}

func (s *memoryProfileStore) Save(_ context.Context, profile UserProfile) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return UserProfile{}, s.saveErr
	}
	profile.ID = "profile_" + profile.UserID
	s.profiles[profile.UserID] = profile
	return profile, nil
}

func (s *memoryProfileStore) GetByUserID(_ context.Context, userID string) (UserProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	return profile, ok, nil
}

type stubIdentityStore struct {
	mu        sync.Mutex
	next      int
	accounts  map[string]IdentityAccount
	passwords map[string]string
	sessions  map[string]string
	createErr error
}

func newStubIdentityStore() *stubIdentityStore {
	return &stubIdentityStore{
		accounts:  map[string]IdentityAccount{},
		passwords: map[string]string{},
		sessions:  map[string]string{},
	}
}

func (s *stubIdentityStore) CreateAccount(_ context.Context, account NewAccount) (IdentityAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return IdentityAccount{}, s.createErr
	}
	s.next++
	created := IdentityAccount{ID: fmt.Sprintf("usr_%d", s.next), Email: account.Email, Name: account.Name}
	s.accounts[account.Email] = created
	s.passwords[account.Email] = account.Password.Reveal()
	return created, nil
}

func (s *stubIdentityStore) CreateSession(_ context.Context, email string, password Secret) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[email]
	if !ok || s.passwords[email] != password.Reveal() {
		return Session{}, fmt.Errorf("stub identity: invalid credentials: %w", ErrSessionInvalid)
	}
	s.next++
	secret := fmt.Sprintf("session-secret-%d", s.next)
	s.sessions[secret] = email
	return Session{
		ID:        fmt.Sprintf("sess_%d", s.next),
		UserID:    account.ID,
		Secret:    NewSessionSecret(secret),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (s *stubIdentityStore) CurrentUser(_ context.Context, session Session) (IdentityAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.sessions[session.Secret.Reveal()]
	if !ok {
		return IdentityAccount{}, ErrSessionInvalid
	}
	return s.accounts[email], nil
}

func (s *stubIdentityStore) DeleteSession(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Secret.Reveal()]; !ok {
		return ErrSessionInvalid
	}
	delete(s.sessions, session.Secret.Reveal())
	return nil
}

// reversingObscurer is a deterministic stand-in for the AES-SIV codec.
type reversingObscurer struct{}

func (reversingObscurer) Encrypt(accountID string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("obscurer: account id is required")
	}
	return "sh_" + base64.RawURLEncoding.EncodeToString([]byte(accountID)), nil
}

func (reversingObscurer) Decrypt(shareableID string) (string, error) {
	if !strings.HasPrefix(shareableID, "sh_") {
		return "", fmt.Errorf("obscurer: malformed shareable id")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(shareableID, "sh_"))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type failingObscurer struct{}

func (failingObscurer) Encrypt(string) (string, error) {
	return "", fmt.Errorf("obscurer: key unavailable")
}

func (failingObscurer) Decrypt(string) (string, error) {
	return "", fmt.Errorf("obscurer: key unavailable")
}

type recordingInvalidator struct {
	mu     sync.Mutex
	userID string
	routes []string
	err    error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string, routes ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
	r.routes = append([]string(nil), routes...)
	return r.err
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

// rendered joins every captured message and field value for leak checks.
func (l *captureLogger) rendered() string {
	var builder strings.Builder
	for _, item := range l.snapshot() {
		builder.WriteString(item.msg)
		for key, value := range item.fields {
			fmt.Fprintf(&builder, " %s=%v", key, value)
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level || item.msg != message {
			continue
		}
		if eventType == "" || item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func checkingAccount(id string) AccountSummary {
	return AccountSummary{
		ID:               id,
		Name:             "Plaid Checking",
		OfficialName:     "Plaid Gold Standard 0% Interest Checking",
		Mask:             "0000",
		Type:             "depository",
		Subtype:          "checking",
		AvailableBalance: decimal.RequireFromString("100.00"),
		CurrentBalance:   decimal.RequireFromString("110.00"),
		CurrencyCode:     "USD",
	}
}

func linkedUser() UserIdentity {
	return UserIdentity{
		ID:                 "usr_1",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Email:              "ada@example.com",
		PaymentsCustomerID: "cust-1",
	}
}

type serviceFixture struct {
	svc        *Service
	aggregator *stubAggregator
	rail       *stubRail
	banks      *memoryBankStore
	profiles   *memoryProfileStore
	identity   *stubIdentityStore
	views      *recordingInvalidator
	logger     *captureLogger
	metrics    *captureMetricsRecorder
}

func newServiceFixture(cfg Config, aggregator *stubAggregator, opts ...Option) (*serviceFixture, error) {
	fixture := &serviceFixture{
		aggregator: aggregator,
		rail:       &stubRail{},
		banks:      newMemoryBankStore(),
		profiles:   newMemoryProfileStore(),
		identity:   newStubIdentityStore(),
		views:      &recordingInvalidator{},
		logger:     newCaptureLogger(),
		metrics:    &captureMetricsRecorder{},
	}
	base := []Option{
		WithAggregatorClient(fixture.aggregator),
		WithPaymentsRailClient(fixture.rail),
		WithBankRecordStore(fixture.banks),
		WithUserProfileStore(fixture.profiles),
		WithIdentityStore(fixture.identity),
		WithViewInvalidator(fixture.views),
		WithIDObscurer(reversingObscurer{}),
		WithLogger(fixture.logger),
		WithLoggerProvider(stubLoggerProvider{logger: fixture.logger}),
		WithMetricsRecorder(fixture.metrics),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	fixture.svc = svc
	return fixture, nil
}
