package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSubmission = `{
  "sessionId": "session-1-abcdef12",
  "email": "pat@example.com",
  "fullName": "Pat Doe",
  "painAreas": [{"region": "Lower back", "intensity": 6, "notes": "", "qualities": ["sharp"]}],
  "redFlags": {"nightPain": true},
  "treatmentGoals": "walk again"
}`

func TestValidateSubmission_Valid(t *testing.T) {
	assert.NoError(t, ValidateSubmission([]byte(validSubmission)))
}

func TestValidateSubmission_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing email", `{"sessionId":"s","fullName":"P","painAreas":[{"region":"a","intensity":1}],"redFlags":{}}`, "(root)"},
		{"no pain areas", `{"sessionId":"s","email":"a@b.c","fullName":"P","painAreas":[],"redFlags":{}}`, "painAreas"},
		{"intensity out of range", `{"sessionId":"s","email":"a@b.c","fullName":"P","painAreas":[{"region":"a","intensity":11}],"redFlags":{}}`, "painAreas.0.intensity"},
		{"flag wrong type", `{"sessionId":"s","email":"a@b.c","fullName":"P","painAreas":[{"region":"a","intensity":1}],"redFlags":{"nightPain":"yes"}}`, "redFlags.nightPain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmission([]byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.First().Field)
			assert.Contains(t, verr.Error(), "validation failed")
		})
	}
}

func TestValidateSubmission_MalformedDocument(t *testing.T) {
	err := ValidateSubmission([]byte("{ not json"))
	require.Error(t, err)
	var verr *ValidationError
	assert.NotErrorAs(t, err, &verr)
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	var lerr *SchemaLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "nope", lerr.Name)
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))

	err := ValidateJSONString(schema, `{"name":1}`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.First().Field)

	err = ValidateJSONString(`{"type":`, `{}`)
	var lerr *SchemaLoadError
	assert.ErrorAs(t, err, &lerr)
}
