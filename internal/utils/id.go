package utils

import "github.com/google/uuid"

// GenerateID returns a new random UUID string. All entity ids are opaque
// strings so the storage layer never has to hand out sequence numbers.
func GenerateID() string {
	return uuid.NewString()
}
