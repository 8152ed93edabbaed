package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RequestStatusKey(id uuid.UUID) string {
	return fmt.Sprintf("request:%s", id)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
