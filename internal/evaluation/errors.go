package evaluation

import (
	"fmt"
	"time"
)

// Error codes returned to API clients.
const (
	CodeNoAdAsset          = "NO_AD_ASSET"
	CodeAdScreenshotFailed = "AD_SCREENSHOT_FAILED"
	CodeNoLandingPage      = "NO_LANDING_PAGE"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidPlatform    = "INVALID_PLATFORM"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"
)

// InputError is a problem with what the caller sent. It maps to 400.
type InputError struct {
	Code    string
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InputError) Unwrap() error { return e.Err }

// QuotaExceededError means the caller used up this month's evaluations. It
// maps to 429.
type QuotaExceededError struct {
	Code      string
	Message   string
	Remaining int
	Limit     int
	NextReset time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
