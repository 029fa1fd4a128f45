package drive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidShareLink indicates a share URL that cannot be decoded into codes.
	ErrInvalidShareLink = errors.New("drive: invalid share link")
	// ErrShareInvalid indicates a share that is expired, deleted, or otherwise unusable.
	ErrShareInvalid = errors.New("drive: share expired or invalid")
	// ErrNotFound indicates a remote path that does not resolve to a directory.
	ErrNotFound = errors.New("drive: not found")
	// ErrAuthExpired indicates the stored session is no longer accepted.
	ErrAuthExpired = errors.New("drive: authentication expired")
	// ErrRiskControl indicates the remote anti-abuse mechanism rejected the call.
	ErrRiskControl = errors.New("drive: risk control throttled")
)

// APIError is a remote call that completed but reported failure.
type APIError struct {
	Endpoint string
	Message  string
	Errno    int
}

func (e *APIError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("drive: %s: %s (errno %d)", e.Endpoint, e.Message, e.Errno)
	}
	return fmt.Sprintf("drive: %s: %s", e.Endpoint, e.Message)
}

// RiskClassifier reports whether an error message indicates anti-abuse
// throttling. Kept pluggable so the keyword set can be refined without
// touching the retry loop.
type RiskClassifier func(message string) bool

var riskKeywords = []string{
	"risk",
	"风控",
	"频繁",
	"太快",
	"too fast",
	"limit",
	"rate",
	"throttle",
	"验证码",
	"verify",
	"validation",
	"安全校验",
	"请稍后",
	"稍后再试",
	"系统繁忙",
	"429",
	"403",
	"forbidden",
	"denied",
}

// DefaultRiskClassifier matches the remote service's known throttling phrases.
func DefaultRiskClassifier(message string) bool {
	message = strings.ToLower(message)
	for _, keyword := range riskKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

var authKeywords = []string{
	"登录",
	"login",
	"cookie",
	"未授权",
	"unauthorized",
	"401",
}

func isAuthMessage(message string) bool {
	message = strings.ToLower(message)
	for _, keyword := range authKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

var duplicateKeywords = []string{
	"重复",
	"已存在",
	"already exist",
	"duplicate",
}

// IsDuplicate reports whether err is the remote's "file already received"
// rejection. Callers treat it as success.
func IsDuplicate(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	message := strings.ToLower(apiErr.Message)
	for _, keyword := range duplicateKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
