// Package prompts builds the summarization prompt and the clinic SMS alert from fixed texts
// embedded with the binary.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed assessment.json
var assessmentJSON []byte

// Keys of the texts in assessment.json.
const (
	KeyPreamble     = "preamble"
	KeyInstructions = "summary_instructions"
	KeySMSAlert     = "sms_alert"
)

var requiredKeys = []string{KeyPreamble, KeyInstructions, KeySMSAlert}

// texts parses the embedded file once. Every lookup fails if a required key is blank.
var texts = sync.OnceValues(func() (map[string]string, error) {
	return parseTexts(assessmentJSON)
})

func parseTexts(raw []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse prompt texts: %w", err)
	}
	for _, key := range requiredKeys {
		if strings.TrimSpace(m[key]) == "" {
			return nil, fmt.Errorf("prompt text %q is missing", key)
		}
	}
	return m, nil
}

// Text returns the embedded text stored under key.
func Text(key string) (string, error) {
	m, err := texts()
	if err != nil {
		return "", err
	}
	s, ok := m[key]
	if !ok {
		return "", fmt.Errorf("prompt text %q not found", key)
	}
	return s, nil
}

// Alert holds the values substituted into the SMS alert text.
type Alert struct {
	Name         string
	Email        string
	Reasons      string
	AssessmentID string
}

// SMSAlert renders the alert text for a HIGH urgency assessment.
func SMSAlert(a Alert) (string, error) {
	tmpl, err := Text(KeySMSAlert)
	if err != nil {
		return "", err
	}
	return fill(tmpl, map[string]string{
		"Name":         a.Name,
		"Email":        a.Email,
		"Reasons":      a.Reasons,
		"AssessmentID": a.AssessmentID,
	}), nil
}

// fill replaces {{.Key}} placeholders in a single pass, so substituted values are never
// expanded again. Unknown placeholders are left as they are.
func fill(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for key, value := range values {
		pairs = append(pairs, "{{."+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
