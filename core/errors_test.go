package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Too many verification attempts. Please try again later.",
		UserMessage(fmt.Errorf("subject 1: %w", ErrRateLimited)))
	assert.Equal(t, "Verification request expired. Please start the process again.",
		UserMessage(ErrChallengeExpired))
	assert.Equal(t, "Something went wrong. Please try again later.",
		UserMessage(errors.New("redis: connection refused")))

	for _, err := range []error{
		ErrInvalidAddress, ErrRateLimited, ErrNoChallenge,
		ErrChallengeExpired, ErrMalformedSignature, ErrAddressMismatch,
	} {
		assert.NotEqual(t, UserMessage(errors.New("x")), UserMessage(err), err.Error())
	}
}
