package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type parseError struct {
	err error
}

func (e *parseError) Error() string { return "invalid classification: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func isParseError(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}

// ParseClassification reads the model's JSON answer. Code fences and text
// around the JSON object are tolerated; confidence is clamped to [0, 1].
func ParseClassification(text string) (*domain.Classification, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, &parseError{err: errors.New("no JSON object in model output")}
	}

	var cls domain.Classification
	if err := json.Unmarshal([]byte(body[start:end+1]), &cls); err != nil {
		return nil, &parseError{err: err}
	}
	if cls.TargetAgent == "" && cls.SuggestedWorkflow == "" {
		return nil, &parseError{err: fmt.Errorf("no target agent")}
	}
	switch {
	case cls.Confidence < 0:
		cls.Confidence = 0
	case cls.Confidence > 1:
		cls.Confidence = 1
	}
	return &cls, nil
}
