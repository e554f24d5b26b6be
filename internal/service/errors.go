package service

import "errors"

// Gate rejection reasons, one per check. Every rejection is terminal for the
// request; handlers map each to a status code and short message.
var (
	ErrSpamDetected            = errors.New("spam detected")
	ErrInvalidSecurityToken    = errors.New("invalid security token")
	ErrCaptchaRequired         = errors.New("captcha required")
	ErrCaptchaFailed           = errors.New("captcha verification failed")
	ErrTimingDataMissing       = errors.New("timing data missing")
	ErrSubmittedTooFast        = errors.New("submitted too fast")
	ErrInsufficientInteraction = errors.New("insufficient interaction")
	ErrRateLimited             = errors.New("rate limited")

	// ErrStoreUnavailable means the rate-limit record could not be written;
	// the message was never handed to the relay.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDeliveryFailed means every check passed and the record was written,
	// but the notification relay did not accept the message.
	ErrDeliveryFailed = errors.New("delivery failed")
)
