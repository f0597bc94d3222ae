package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/zfault/droidpilot/internal/agent"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBlockRegex pulls the JSON object out of a reply that may wrap it in a
// markdown code fence or surrounding prose.
var jsonBlockRegex = regexp.MustCompile("(?s)(?:```json\\s*|)(\\{.*\\})(?:```|)")

// maxReplyExcerpt bounds how much of a bad reply gets quoted into the error.
const maxReplyExcerpt = 160

// ParseDecision turns a raw model reply into a validated decision. Any
// failure is a non-retryable provider error: resending the identical prompt
// buys nothing, the loop should surface the reply instead.
func ParseDecision(provider, raw string) (agent.Decision, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return agent.Decision{}, malformedReply(provider, raw, errors.New("empty reply"))
	}

	matches := jsonBlockRegex.FindStringSubmatch(trimmed)
	if len(matches) < 2 {
		return agent.Decision{}, malformedReply(provider, raw, errors.New("no JSON object in reply"))
	}

	var decision agent.Decision
	if err := json.Unmarshal([]byte(matches[1]), &decision); err != nil {
		return agent.Decision{}, malformedReply(provider, raw, fmt.Errorf("decoding decision object: %w", err))
	}
	if err := decision.Validate(); err != nil {
		return agent.Decision{}, malformedReply(provider, raw, err)
	}
	return decision, nil
}

func malformedReply(provider, raw string, cause error) *ProviderError {
	return NewProviderError(provider, "parse", KindMalformedReply, fmt.Sprintf("unusable reply %q", excerpt(raw)), cause)
}

func excerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxReplyExcerpt {
		return raw[:maxReplyExcerpt] + "..."
	}
	return raw
}
