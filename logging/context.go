package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type debugKey struct{}

// EnableDebugMode marks ctx so that the CDebug methods log regardless of the logger level. The key
// identifies the request in logs; an empty key is replaced by a short random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key, _, _ = strings.Cut(uuid.NewString(), "-")
	}
	return context.WithValue(ctx, debugKey{}, key)
}

// IsDebugMode reports whether ctx was marked by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName returns the key passed to EnableDebugMode, or "".
func GetName(ctx context.Context) string {
	key, _ := ctx.Value(debugKey{}).(string)
	return key
}
