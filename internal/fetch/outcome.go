// Package fetch implements the fast, TLS-impersonated fetch path.
package fetch

import (
	"fmt"
	"time"
)

// Kind discriminates fetch outcomes.
type Kind string

const (
	// KindSuccess means a clean results page was fetched.
	KindSuccess Kind = "success"

	// KindCaptcha means the target served a challenge page.
	KindCaptcha Kind = "captcha"

	// KindTransportFailure means the request never produced a usable
	// page: dial errors, timeouts, TLS failures, 5xx responses.
	KindTransportFailure Kind = "transport_failure"
)

// Outcome is the tagged result of one fetch attempt. Exactly one of the
// three kinds applies; HTML is set for Success and Captcha, Err only for
// TransportFailure.
type Outcome struct {
	Kind       Kind
	HTML       string
	FinalURL   string
	StatusCode int
	Latency    time.Duration

	// Reason names the detection rule behind a Captcha verdict.
	Reason string

	Err error
}

// String renders a short description for logs.
func (o Outcome) String() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("success (status %d, %s)", o.StatusCode, o.Latency.Round(time.Millisecond))
	case KindCaptcha:
		return fmt.Sprintf("captcha (%s)", o.Reason)
	case KindTransportFailure:
		return fmt.Sprintf("transport failure: %v", o.Err)
	default:
		return string(o.Kind)
	}
}
