package qa

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/zfault/droidpilot/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Replies may wrap their JSON payload in a markdown fence or surrounding
// prose; these pull out the outermost array or object.
var (
	jsonArrayRegex  = regexp.MustCompile("(?s)(?:```json\\s*|)(\\[.*\\])(?:```|)")
	jsonObjectRegex = regexp.MustCompile("(?s)(?:```json\\s*|)(\\{.*\\})(?:```|)")
)

// maxReplyExcerpt bounds how much of a bad reply gets quoted into the error.
const maxReplyExcerpt = 160

// ParsePlan turns a raw model reply into a validated, numbered plan. Any
// failure is a non-retryable provider error: the reply is unusable and
// resending the identical prompt buys nothing.
func ParsePlan(provider, raw string) ([]PlanStep, error) {
	payload, err := extractArray(raw)
	if err != nil {
		return nil, malformedReply(provider, raw, err)
	}

	var steps []PlanStep
	if err := json.Unmarshal([]byte(payload), &steps); err != nil {
		return nil, malformedReply(provider, raw, fmt.Errorf("decoding plan array: %w", err))
	}
	if len(steps) == 0 {
		return nil, malformedReply(provider, raw, errors.New("plan is empty"))
	}
	for i := range steps {
		if steps[i].ID == 0 {
			steps[i].ID = i + 1
		}
		if err := steps[i].Validate(); err != nil {
			return nil, malformedReply(provider, raw, err)
		}
	}
	return steps, nil
}

// ParseVerification decodes a verifier reply into a validated verification.
func ParseVerification(provider, raw string) (Verification, error) {
	trimmed := strings.TrimSpace(raw)
	matches := jsonObjectRegex.FindStringSubmatch(trimmed)
	if len(matches) < 2 {
		return Verification{}, malformedReply(provider, raw, errors.New("no JSON object in reply"))
	}

	var v Verification
	if err := json.Unmarshal([]byte(matches[1]), &v); err != nil {
		return Verification{}, malformedReply(provider, raw, fmt.Errorf("decoding verification object: %w", err))
	}
	if err := v.Validate(); err != nil {
		return Verification{}, malformedReply(provider, raw, err)
	}
	return v, nil
}

// ParseImprovements decodes the supervisor's suggestion list. Entries with no
// suggestion text are dropped rather than failing the whole reply; the list
// is advisory.
func ParseImprovements(provider, raw string) ([]Improvement, error) {
	payload, err := extractArray(raw)
	if err != nil {
		return nil, malformedReply(provider, raw, err)
	}

	var improvements []Improvement
	if err := json.Unmarshal([]byte(payload), &improvements); err != nil {
		return nil, malformedReply(provider, raw, fmt.Errorf("decoding improvements array: %w", err))
	}
	kept := improvements[:0]
	for _, imp := range improvements {
		if strings.TrimSpace(imp.Suggestion) != "" {
			kept = append(kept, imp)
		}
	}
	return kept, nil
}

func extractArray(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("empty reply")
	}
	matches := jsonArrayRegex.FindStringSubmatch(trimmed)
	if len(matches) < 2 {
		return "", errors.New("no JSON array in reply")
	}
	return matches[1], nil
}

func malformedReply(provider, raw string, cause error) *model.ProviderError {
	return model.NewProviderError(provider, "parse", model.KindMalformedReply, fmt.Sprintf("unusable reply %q", excerpt(raw)), cause)
}

func excerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxReplyExcerpt {
		return raw[:maxReplyExcerpt] + "..."
	}
	return raw
}
