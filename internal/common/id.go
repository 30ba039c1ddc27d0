package common

import (
	"github.com/google/uuid"
)

// NewInvocationID generates a unique tool invocation ID with the "inv_" prefix
// Format: inv_<uuid>
func NewInvocationID() string {
	return "inv_" + uuid.New().String()
}

// NewChallengeID generates a unique verification challenge ID with the "chal_" prefix
// Format: chal_<uuid>
func NewChallengeID() string {
	return "chal_" + uuid.New().String()
}
