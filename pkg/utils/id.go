package utils

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID
func GenerateID() string {
	return uuid.New().String()
}

// GenerateBatchID generates a batch ID with a timestamp prefix for easy
// chronological sorting in stores and logs.
func GenerateBatchID() string {
	timestamp := time.Now().Format("20060102-150405")
	return timestamp + "-" + uuid.New().String()[:8]
}
