package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dikeckaan/siteform/internal/model"
	"github.com/dikeckaan/siteform/internal/repository"
	"github.com/dikeckaan/siteform/pkg/relay"
)

// ---------------------------------------------------------------------------
// Mocks: func-field stubs with call counters
// ---------------------------------------------------------------------------

type mockRateLimitRepository struct {
	getFunc  func(ctx context.Context, key string) (*model.RateLimitRecord, error)
	putFunc  func(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error
	getCalls int
	putCalls int
}

func (m *mockRateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitRecord, error) {
	m.getCalls++
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return nil, repository.ErrNotFound
}

func (m *mockRateLimitRepository) Put(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
	m.putCalls++
	if m.putFunc != nil {
		return m.putFunc(ctx, key, rec, ttl)
	}
	return nil
}

func (m *mockRateLimitRepository) Delete(ctx context.Context, key string) error { return nil }

func (m *mockRateLimitRepository) List(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	return nil, "", nil
}

func (m *mockRateLimitRepository) Ping(ctx context.Context) error { return nil }

type mockCaptchaVerifier struct {
	verifyFunc func(ctx context.Context, token, remoteIP string) (bool, error)
	calls      int
}

func (m *mockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	m.calls++
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, token, remoteIP)
	}
	return true, nil
}

type mockNotifier struct {
	sendFunc func(ctx context.Context, msg relay.Message) error
	calls    int
	lastMsg  relay.Message
}

func (m *mockNotifier) Send(ctx context.Context, msg relay.Message) error {
	m.calls++
	m.lastMsg = msg
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testGateConfig() GateConfig {
	return GateConfig{
		IdentitySalt:      "test-salt",
		RateLimitWindow:   4 * time.Hour,
		RecordTTL:         24 * time.Hour,
		MinFormDuration:   5 * time.Second,
		MinMouseMovements: 10,
		MinKeyPresses:     5,
		MinFocusEvents:    2,
		MaxFieldLength:    5000,
	}
}

func validAttempt() *model.SubmissionAttempt {
	return &model.SubmissionAttempt{
		Email:   "alice@example.com",
		Subject: "Hello",
		Message: "Just saying hi.",
		HoneypotFields: map[string]string{
			"honeypot": "",
			"website":  "",
		},
		CaptchaToken:   "tok-abc",
		FormToken:      strings.Repeat("ab", 16),
		FormStartTime:  time.Now().Add(-6 * time.Second).UnixMilli(),
		MouseMovements: 15,
		KeyPresses:     8,
		FocusEvents:    3,
		ClientIP:       "203.0.113.7",
	}
}

func newTestGate(repo *mockRateLimitRepository, captcha *mockCaptchaVerifier, notifier *mockNotifier) GateService {
	return NewGateService(repo, captcha, notifier, testGateConfig())
}

// ---------------------------------------------------------------------------
// Rejection ordering and side-effect counts
// ---------------------------------------------------------------------------

func TestGateService_Submit_HoneypotRejectsWithoutSideEffects(t *testing.T) {
	repo := &mockRateLimitRepository{}
	captcha := &mockCaptchaVerifier{}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, captcha, notifier)

	a := validAttempt()
	a.HoneypotFields["honeypot"] = "http://spam.example"

	if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrSpamDetected) {
		t.Fatalf("expected ErrSpamDetected, got %v", err)
	}
	if repo.putCalls != 0 {
		t.Errorf("expected zero store writes, got %d", repo.putCalls)
	}
	if captcha.calls != 0 {
		t.Errorf("expected zero captcha calls, got %d", captcha.calls)
	}
	if notifier.calls != 0 {
		t.Errorf("expected zero relay calls, got %d", notifier.calls)
	}
}

func TestGateService_Submit_FormTokenShape(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"too short", "abcdef"},
		{"too long", strings.Repeat("a", 33)},
		{"right length but not hex", strings.Repeat("z", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRateLimitRepository{}
			captcha := &mockCaptchaVerifier{}
			notifier := &mockNotifier{}
			gate := newTestGate(repo, captcha, notifier)

			a := validAttempt()
			a.FormToken = tc.token

			if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrInvalidSecurityToken) {
				t.Fatalf("expected ErrInvalidSecurityToken, got %v", err)
			}
			// The shape check must reject before any network call.
			if captcha.calls != 0 {
				t.Errorf("expected zero captcha calls, got %d", captcha.calls)
			}
			if repo.getCalls != 0 || repo.putCalls != 0 {
				t.Errorf("expected zero store calls, got get=%d put=%d", repo.getCalls, repo.putCalls)
			}
		})
	}
}

func TestGateService_Submit_CaptchaTokenRequired(t *testing.T) {
	repo := &mockRateLimitRepository{}
	captcha := &mockCaptchaVerifier{}
	gate := newTestGate(repo, captcha, &mockNotifier{})

	a := validAttempt()
	a.CaptchaToken = ""

	if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
	if captcha.calls != 0 {
		t.Errorf("expected zero captcha calls for absent token, got %d", captcha.calls)
	}
}

func TestGateService_Submit_CaptchaVerificationFailure(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(ctx context.Context, token, remoteIP string) (bool, error)
	}{
		{"rejected", func(ctx context.Context, token, remoteIP string) (bool, error) { return false, nil }},
		{"transport error", func(ctx context.Context, token, remoteIP string) (bool, error) {
			return false, errors.New("timeout")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRateLimitRepository{}
			captcha := &mockCaptchaVerifier{verifyFunc: tc.fn}
			notifier := &mockNotifier{}
			gate := newTestGate(repo, captcha, notifier)

			if err := gate.Submit(context.Background(), validAttempt()); !errors.Is(err, ErrCaptchaFailed) {
				t.Fatalf("expected ErrCaptchaFailed, got %v", err)
			}
			if repo.putCalls != 0 {
				t.Errorf("expected zero store writes, got %d", repo.putCalls)
			}
			if notifier.calls != 0 {
				t.Errorf("expected zero relay calls, got %d", notifier.calls)
			}
		})
	}
}

func TestGateService_Submit_TimingDataMissing(t *testing.T) {
	gate := newTestGate(&mockRateLimitRepository{}, &mockCaptchaVerifier{}, &mockNotifier{})

	a := validAttempt()
	a.FormStartTime = 0

	if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrTimingDataMissing) {
		t.Fatalf("expected ErrTimingDataMissing, got %v", err)
	}
}

func TestGateService_Submit_TooFast(t *testing.T) {
	repo := &mockRateLimitRepository{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, &mockNotifier{})

	a := validAttempt()
	a.FormStartTime = time.Now().Add(-2 * time.Second).UnixMilli()

	if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrSubmittedTooFast) {
		t.Fatalf("expected ErrSubmittedTooFast, got %v", err)
	}
	if repo.putCalls != 0 {
		t.Errorf("expected zero store writes, got %d", repo.putCalls)
	}
}

func TestGateService_Submit_InsufficientInteraction(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(a *model.SubmissionAttempt)
	}{
		{"few mouse movements", func(a *model.SubmissionAttempt) { a.MouseMovements = 3 }},
		{"few key presses", func(a *model.SubmissionAttempt) { a.KeyPresses = 1 }},
		{"few focus events", func(a *model.SubmissionAttempt) { a.FocusEvents = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := newTestGate(&mockRateLimitRepository{}, &mockCaptchaVerifier{}, &mockNotifier{})
			a := validAttempt()
			tc.mutate(a)
			if err := gate.Submit(context.Background(), a); !errors.Is(err, ErrInsufficientInteraction) {
				t.Fatalf("expected ErrInsufficientInteraction, got %v", err)
			}
		})
	}
}

// Optional counters are enforced only when the client reported them.
func TestGateService_Submit_OptionalCountersSkippedWhenAbsent(t *testing.T) {
	repo := &mockRateLimitRepository{}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	a := validAttempt()
	a.KeyPresses = -1
	a.FocusEvents = -1

	if err := gate.Submit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("expected one relay call, got %d", notifier.calls)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestGateService_Submit_RateLimitedNoWrite(t *testing.T) {
	recent := &model.RateLimitRecord{
		Email:     "alice@example.com",
		Subject:   "Hello",
		Timestamp: time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339),
	}
	repo := &mockRateLimitRepository{
		getFunc: func(ctx context.Context, key string) (*model.RateLimitRecord, error) {
			return recent, nil
		},
	}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	if err := gate.Submit(context.Background(), validAttempt()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if repo.putCalls != 0 {
		t.Errorf("expected zero store writes on rejection, got %d", repo.putCalls)
	}
	if notifier.calls != 0 {
		t.Errorf("expected zero relay calls, got %d", notifier.calls)
	}
}

func TestGateService_Submit_ExpiredRecordAdmits(t *testing.T) {
	stale := &model.RateLimitRecord{
		Timestamp: time.Now().Add(-5 * time.Hour).UTC().Format(time.RFC3339),
	}
	repo := &mockRateLimitRepository{
		getFunc: func(ctx context.Context, key string) (*model.RateLimitRecord, error) {
			return stale, nil
		},
	}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, &mockNotifier{})

	if err := gate.Submit(context.Background(), validAttempt()); err != nil {
		t.Fatalf("expected admission past the window, got %v", err)
	}
	if repo.putCalls != 1 {
		t.Errorf("expected one store write, got %d", repo.putCalls)
	}
}

// A record whose timestamp cannot be parsed fails open: the sender is not at
// fault and failing closed would lock them out for good.
func TestGateService_Submit_MalformedRecordFailsOpen(t *testing.T) {
	repo := &mockRateLimitRepository{
		getFunc: func(ctx context.Context, key string) (*model.RateLimitRecord, error) {
			return &model.RateLimitRecord{Timestamp: "not-a-time"}, nil
		},
	}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	if err := gate.Submit(context.Background(), validAttempt()); err != nil {
		t.Fatalf("expected fail-open admission, got %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("expected one relay call, got %d", notifier.calls)
	}
}

func TestGateService_Submit_StoreReadFailureFailsOpen(t *testing.T) {
	repo := &mockRateLimitRepository{
		getFunc: func(ctx context.Context, key string) (*model.RateLimitRecord, error) {
			return nil, errors.New("store unavailable")
		},
	}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, &mockNotifier{})

	if err := gate.Submit(context.Background(), validAttempt()); err != nil {
		t.Fatalf("expected fail-open admission on store fault, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Acceptance path
// ---------------------------------------------------------------------------

func TestGateService_Submit_AcceptWritesOnceAndRelaysOnce(t *testing.T) {
	var putKey string
	var putTTL time.Duration
	var putRec *model.RateLimitRecord
	repo := &mockRateLimitRepository{
		putFunc: func(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
			putKey, putRec, putTTL = key, rec, ttl
			return nil
		},
	}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	a := validAttempt()
	if err := gate.Submit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.putCalls != 1 {
		t.Fatalf("expected exactly one store write, got %d", repo.putCalls)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected exactly one relay call, got %d", notifier.calls)
	}
	if putTTL != 24*time.Hour {
		t.Errorf("expected TTL 24h, got %s", putTTL)
	}
	if putKey == "" || strings.Contains(putKey, a.ClientIP) {
		t.Errorf("store key must be a derived hash, got %q", putKey)
	}
	if putRec.Email != a.Email || putRec.Subject != a.Subject {
		t.Errorf("record fields mismatch: %+v", putRec)
	}
	if _, err := putRec.Time(); err != nil {
		t.Errorf("record timestamp not parsable: %v", err)
	}
}

func TestGateService_Submit_SanitizesRelayedPayload(t *testing.T) {
	notifier := &mockNotifier{}
	gate := newTestGate(&mockRateLimitRepository{}, &mockCaptchaVerifier{}, notifier)

	a := validAttempt()
	a.Message = `<script>alert(1)</script>`

	if err := gate.Submit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(notifier.lastMsg.Text, "<script>") {
		t.Errorf("relayed payload contains raw markup: %q", notifier.lastMsg.Text)
	}
	if !strings.Contains(notifier.lastMsg.Text, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Errorf("expected escaped markup in payload, got: %q", notifier.lastMsg.Text)
	}
}

func TestGateService_Submit_TruncatesLongFields(t *testing.T) {
	notifier := &mockNotifier{}
	gate := newTestGate(&mockRateLimitRepository{}, &mockCaptchaVerifier{}, notifier)

	a := validAttempt()
	// No "x" in the sender fields, so the count isolates the message body.
	a.Email = "alice@mail.test"
	a.Subject = "hello"
	a.Message = strings.Repeat("x", 6000)

	if err := gate.Submit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(notifier.lastMsg.Text, "x"); n != 5000 {
		t.Errorf("expected message truncated to 5000 chars, got %d", n)
	}
}

func TestGateService_Submit_TruncationKeepsRuneBoundary(t *testing.T) {
	notifier := &mockNotifier{}
	gate := newTestGate(&mockRateLimitRepository{}, &mockCaptchaVerifier{}, notifier)

	a := validAttempt()
	a.Email = "alice@mail.test"
	a.Subject = "hello"
	// 3-byte runes that do not divide the byte cap evenly, so a naive
	// byte slice would split the rune at the boundary.
	a.Message = strings.Repeat("日", 2000)

	if err := gate.Submit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(notifier.lastMsg.Text) {
		t.Errorf("relayed payload contains a split rune")
	}
	if n := strings.Count(notifier.lastMsg.Text, "日"); n != 1666 {
		t.Errorf("expected 1666 whole runes after truncation, got %d", n)
	}
}

// Delivery failure after the record was written still consumes the window.
func TestGateService_Submit_DeliveryFailureAfterWrite(t *testing.T) {
	repo := &mockRateLimitRepository{}
	notifier := &mockNotifier{
		sendFunc: func(ctx context.Context, msg relay.Message) error {
			return errors.New("relay down")
		},
	}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	if err := gate.Submit(context.Background(), validAttempt()); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if repo.putCalls != 1 {
		t.Errorf("expected the record write to have happened, got %d writes", repo.putCalls)
	}
}

func TestGateService_Submit_StoreWriteFailure(t *testing.T) {
	repo := &mockRateLimitRepository{
		putFunc: func(ctx context.Context, key string, rec *model.RateLimitRecord, ttl time.Duration) error {
			return errors.New("write refused")
		},
	}
	notifier := &mockNotifier{}
	gate := newTestGate(repo, &mockCaptchaVerifier{}, notifier)

	if err := gate.Submit(context.Background(), validAttempt()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if notifier.calls != 0 {
		t.Errorf("expected no relay call after failed write, got %d", notifier.calls)
	}
}
