package ratelimit

import "strings"

// Class groups routes that share a per-address counter
type Class string

const (
	ClassDefault Class = "default" // Regular API traffic
	ClassAI      Class = "ai"      // Generative AI calls, billed per request
	ClassAuth    Class = "auth"    // Sign-in challenges, keyed by requested address
)

// Limits holds the configured limits for one window
type Limits struct {
	Global        int64
	Address       int64
	AI            int64
	WindowSeconds int
}

// DefaultLimits is used when no configuration is supplied
var DefaultLimits = Limits{
	Global:        600,
	Address:       120,
	AI:            10,
	WindowSeconds: 60,
}

// ClassForPath returns the limit class for a request path
func ClassForPath(path string) Class {
	if strings.HasPrefix(path, "/api/ai/") || strings.HasSuffix(path, "/analyze") {
		return ClassAI
	}
	return ClassDefault
}

// LimitFor returns the per-address limit for a class
func (l Limits) LimitFor(class Class) int64 {
	switch class {
	case ClassAI:
		return l.AI
	default:
		return l.Address
	}
}

// Window returns the window length, falling back to the default
func (l Limits) Window() int {
	if l.WindowSeconds <= 0 {
		return DefaultLimits.WindowSeconds
	}
	return l.WindowSeconds
}
