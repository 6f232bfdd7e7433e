package utils

import (
	"github.com/google/uuid"
)

func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateRequestID produces an idempotency key for callers that do not
// supply one.
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}
