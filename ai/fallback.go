package ai

import "strings"

// FallbackKind names why a reply was substituted. The zero value means the
// reply came from the model.
type FallbackKind string

const (
	FallbackNone          FallbackKind = ""
	FallbackConfiguration FallbackKind = "configuration"
	FallbackRateLimited   FallbackKind = "rate_limited"
	FallbackGeneric       FallbackKind = "generic"
	FallbackEmpty         FallbackKind = "empty"
)

var fallbackReplies = map[FallbackKind]string{
	FallbackConfiguration: "I'm currently experiencing configuration issues. Please contact the page admin.",
	FallbackRateLimited:   "I'm currently receiving too many requests. Please try again in a moment.",
	FallbackGeneric:       "I'm sorry, I'm having trouble processing your request right now. Please try again in a moment.",
	FallbackEmpty:         "I'm sorry, I couldn't generate a response. Please try again.",
}

// Reply is the sentence sent to the Messenger user for this kind.
func (k FallbackKind) Reply() string {
	return fallbackReplies[k]
}

// Classify picks the fallback for a failed completion from the error text.
// Credential problems win over rate limiting.
func Classify(err error) FallbackKind {
	if err == nil {
		return FallbackEmpty
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key"), strings.Contains(msg, "API_KEY"):
		return FallbackConfiguration
	case strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return FallbackRateLimited
	default:
		return FallbackGeneric
	}
}
