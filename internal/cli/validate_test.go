package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/compiler"
)

const invalidSchema = `version: 1
collection: users: attributes: {
	id: {type: "string"}
	token: {type: "string", default_func: "bogus"}
}
collection: posts: attributes: body: {type: "text"}
`

func TestValidateValidSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{testSchemaPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Schema valid")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{testSchemaPath})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
}

func TestValidateNonExistentPath(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/schema.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error ["+ErrCodeNotFound+"]")
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := writeSchema(t, invalidSchema)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 3 error(s)")

	output := buf.String()
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, ErrCodeInvalidType+": load:")
	assert.Contains(t, output, compiler.ErrReservedName+": collection.users.attributes.id")
	assert.Contains(t, output, compiler.ErrUnknownDefaultFunc+": collection.users.attributes.token.default_func")
}

func TestValidateInvalidSchemaJSON(t *testing.T) {
	dir := writeSchema(t, invalidSchema)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 3)
	require.NotNil(t, resp.Error)
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateSchema(t *testing.T) {
	errs, err := ValidateSchema(testSchemaPath)
	require.NoError(t, err)
	assert.Empty(t, errs)

	dir := writeSchema(t, invalidSchema)
	errs, err = ValidateSchema(dir)
	require.NoError(t, err)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.ElementsMatch(t, []string{ErrCodeInvalidType, compiler.ErrReservedName, compiler.ErrUnknownDefaultFunc}, codes)
}

func TestValidateSchemaNonExistent(t *testing.T) {
	_, err := ValidateSchema("/nonexistent/schema.cue")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}
