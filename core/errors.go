package core

import "errors"

var (
	ErrInvalidAddress     = errors.New("invalid wallet address")
	ErrRateLimited        = errors.New("too many verification attempts")
	ErrNoChallenge        = errors.New("no pending verification")
	ErrChallengeExpired   = errors.New("verification request expired")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrAddressMismatch    = errors.New("signature does not match wallet")

	ErrBalanceFetch      = errors.New("balance fetch failed")
	ErrRoleMutation      = errors.New("role mutation failed")
	ErrMissingPermission = errors.New("missing manage roles permission")
	ErrRoleHierarchy     = errors.New("role is above the bot in the hierarchy")
	ErrRoleNotFound      = errors.New("role not found in community")

	ErrNotFound      = errors.New("not found")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserMessage translates a verification error into the short, actionable
// text shown to the member. Unknown errors get a generic message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAddress):
		return "Invalid wallet address format."
	case errors.Is(err, ErrRateLimited):
		return "Too many verification attempts. Please try again later."
	case errors.Is(err, ErrNoChallenge):
		return "No pending verification found. Please start the verification process again."
	case errors.Is(err, ErrChallengeExpired):
		return "Verification request expired. Please start the process again."
	case errors.Is(err, ErrMalformedSignature):
		return "Invalid signature format. Please make sure you copied the entire signature correctly."
	case errors.Is(err, ErrAddressMismatch):
		return "Signature verification failed. The signature does not match the provided wallet address."
	default:
		return "Something went wrong. Please try again later."
	}
}
