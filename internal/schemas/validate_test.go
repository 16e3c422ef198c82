package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSON_ValidJSON(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "valid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	assert.NoError(t, err)
}

func TestValidateJSON_InvalidJSON_MissingField(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "invalid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidateJSON_InvalidJSON_WrongType(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "type_mismatch.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidateJSON_NonExistentSchema(t *testing.T) {
	schemaPath := "testdata/nonexistent_schema.json"
	jsonPath := filepath.Join("testdata", "valid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_NonExistentJSON(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := "testdata/nonexistent_json.json"

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_MalformedJSON(t *testing.T) {
	// Create a temporary malformed JSON file
	tmpDir := t.TempDir()
	malformedJSON := filepath.Join(tmpDir, "malformed.json")
	err := os.WriteFile(malformedJSON, []byte("{ invalid json }"), 0644)
	require.NoError(t, err)

	schemaPath := filepath.Join("testdata", "valid_schema.json")

	valErr := ValidateJSON(schemaPath, malformedJSON)
	require.Error(t, valErr)
	// The error might be from gojsonschema parsing, not our code
}

func TestValidateJSONString_Valid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	jsonContent := `{"name": "test"}`

	err := ValidateJSONString(schemaContent, jsonContent)
	assert.NoError(t, err)
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	jsonContent := `{"age": 30}`

	err := ValidateJSONString(schemaContent, jsonContent)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "pages", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "pages")
}

func TestValidateJSON_NestedFieldValidation(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["check"],
		"properties": {
			"check": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "string"}
				}
			}
		}
	}`

	jsonContent := `{"check": {}}`

	err := ValidateJSONString(schemaContent, jsonContent)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
	// Check that the field path includes nested field
	found := false
	for _, fieldErr := range validationErr.Errors {
		if fieldErr.Field != "" {
			found = true
			break
		}
	}
	assert.True(t, found, "should include field path in error")
}
