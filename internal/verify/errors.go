package verify

import "errors"

// ErrVerificationUnavailable means no evidence could be obtained from any
// path, so no verdict at all can be computed. Every lesser failure degrades
// instead of raising this.
var ErrVerificationUnavailable = errors.New("verification unavailable")
