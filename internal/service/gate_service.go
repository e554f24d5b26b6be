package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dikeckaan/siteform/internal/model"
	"github.com/dikeckaan/siteform/internal/repository"
	"github.com/dikeckaan/siteform/pkg/relay"
)

// formTokenLength is the exact length of the client-generated nonce:
// 16 random bytes, hex-encoded.
const formTokenLength = 32

// CaptchaVerifier confirms a client-presented CAPTCHA token with the
// challenge service. Implemented by pkg/turnstile.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// GateService decides whether a submission is forwarded to the relay.
type GateService interface {
	// Submit runs the admission checks in order and, on acceptance,
	// persists the rate-limit record and relays the notification. A nil
	// return means the message was delivered. Any non-nil return is one of
	// the sentinels in errors.go.
	Submit(ctx context.Context, a *model.SubmissionAttempt) error
}

// GateConfig carries the gate's policy knobs; values come from deployment
// config, never literals at call sites.
type GateConfig struct {
	IdentitySalt    string
	RateLimitWindow time.Duration
	RecordTTL       time.Duration

	MinFormDuration   time.Duration
	MinMouseMovements int
	MinKeyPresses     int
	MinFocusEvents    int
	MaxFieldLength    int

	// CaptchaDisabled skips checks 3 and 4 for local development only.
	CaptchaDisabled bool
}

// gateServiceImpl is the production implementation of GateService.
type gateServiceImpl struct {
	repo     repository.RateLimitRepository
	captcha  CaptchaVerifier
	notifier relay.Notifier
	cfg      GateConfig
}

// NewGateService wires the gate to its store and collaborators.
func NewGateService(repo repository.RateLimitRepository, captcha CaptchaVerifier, notifier relay.Notifier, cfg GateConfig) GateService {
	return &gateServiceImpl{repo: repo, captcha: captcha, notifier: notifier, cfg: cfg}
}

// Submit applies the checks cheapest-first and short-circuits on the first
// failure. No store write and no relay call happen on any rejection; an
// accepted attempt performs exactly one write and at most one relay call.
func (s *gateServiceImpl) Submit(ctx context.Context, a *model.SubmissionAttempt) error {
	// 1. Honeypot: any hidden field with content is a bot.
	for name, val := range a.HoneypotFields {
		if val != "" {
			slog.Info("honeypot tripped", "field", name)
			return ErrSpamDetected
		}
	}

	// 2. Form-token shape, before anything that costs a network call.
	if len(a.FormToken) != formTokenLength || !isHex(a.FormToken) {
		return ErrInvalidSecurityToken
	}

	if !s.cfg.CaptchaDisabled {
		// 3. CAPTCHA token presence.
		if a.CaptchaToken == "" {
			return ErrCaptchaRequired
		}

		// 4. CAPTCHA verification, the one expensive check before the store.
		ok, err := s.captcha.Verify(ctx, a.CaptchaToken, a.ClientIP)
		if err != nil {
			slog.Warn("captcha verification call failed", "error", err)
			return ErrCaptchaFailed
		}
		if !ok {
			return ErrCaptchaFailed
		}
	}

	// 5. Timing heuristic: the form must have been open for a minimum dwell.
	if a.FormStartTime == 0 {
		return ErrTimingDataMissing
	}
	elapsed := time.Since(time.UnixMilli(a.FormStartTime))
	if elapsed < s.cfg.MinFormDuration {
		return ErrSubmittedTooFast
	}

	// 6. Interaction heuristics: mouse movement is required; key-press and
	// focus counters are enforced only when the client reported them.
	if a.MouseMovements < s.cfg.MinMouseMovements {
		return ErrInsufficientInteraction
	}
	if a.KeyPresses >= 0 && a.KeyPresses < s.cfg.MinKeyPresses {
		return ErrInsufficientInteraction
	}
	if a.FocusEvents >= 0 && a.FocusEvents < s.cfg.MinFocusEvents {
		return ErrInsufficientInteraction
	}

	// 7. Rate-limit window against the store.
	key := HashIdentity(s.cfg.IdentitySalt, a.ClientIP)
	if s.isRateLimited(ctx, key) {
		return ErrRateLimited
	}

	// Accepted: write the record first, then relay. A relay failure still
	// consumes the window; retrying a submission that may already have
	// been delivered would be worse than making the sender wait.
	now := time.Now()
	rec := model.NewRateLimitRecord(a, now)
	if err := s.repo.Put(ctx, key, rec, s.cfg.RecordTTL); err != nil {
		slog.Error("rate-limit record write failed", "error", err)
		return ErrStoreUnavailable
	}

	msg := relay.Message{
		Subject: s.sanitize(a.Subject),
		Text: fmt.Sprintf("New contact form submission\nEmail: %s\nSubject: %s\n\n%s",
			s.sanitize(a.Email), s.sanitize(a.Subject), s.sanitize(a.Message)),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		slog.Error("notification relay failed", "error", err)
		return ErrDeliveryFailed
	}
	return nil
}

// isRateLimited reads the window record for key. Store faults and malformed
// records fail open: a broken read is not the sender's fault, and failing
// closed would lock them out with no recovery path.
func (s *gateServiceImpl) isRateLimited(ctx context.Context, key string) bool {
	rec, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("rate-limit read failed, allowing", "error", err)
		}
		return false
	}
	ts, err := rec.Time()
	if err != nil {
		slog.Warn("malformed rate-limit record, allowing", "key", key, "error", err)
		return false
	}
	return time.Since(ts) < s.cfg.RateLimitWindow
}

// sanitize truncates a free-text field and HTML-escapes it so the relay's
// rendering context cannot interpret submitted markup. The cut backs off to
// a rune boundary so a multi-byte character is never split at the cap.
func (s *gateServiceImpl) sanitize(v string) string {
	if max := s.cfg.MaxFieldLength; max > 0 && len(v) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(v[cut]) {
			cut--
		}
		v = v[:cut]
	}
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return r.Replace(v)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
