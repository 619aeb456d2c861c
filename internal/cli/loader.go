package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lattice/internal/compiler"
	"github.com/roach88/lattice/internal/schema"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading a schema.
type LoadResult struct {
	Definition *schema.Definition
	CUEValue   cue.Value // The raw CUE value for additional processing
	FileCount  int       // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads and compiles the CUE schema at path, a directory or a
// single .cue file. Collections are compiled one by one: with
// LoadModeCollectAll every failing collection is reported and the
// definition holds the ones that compiled.
func LoadSchema(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema path: %v", err)}}
	}

	fileCount := 1
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		fileCount = len(cueFiles)
	}

	value, err := compiler.LoadValue(path)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	version, err := compiler.CompileVersion(value)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeGeneric)}
	}

	result := &LoadResult{
		Definition: schema.NewDefinition(version),
		CUEValue:   value,
		FileCount:  fileCount,
	}

	var errs []error
	colsVal := value.LookupPath(cue.ParsePath("collection"))
	if !colsVal.Exists() {
		errs = append(errs, &LoadError{Code: ErrCodeNoCollections, Message: "no collections found in schema"})
		return result, errs
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return result, append(errs, convertCompileError(err, ErrCodeGeneric))
	}
	for iter.Next() {
		col, err := compiler.CompileCollection(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeGeneric))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Definition.Collections[col.Name] = col
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with
// position info. Errors without a field use fallback.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Field + ": " + compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeNoCollections = "E008" // Schema declares no collections
	ErrCodeStoreFailed   = "E009" // Store open or read error

	// Schema compile errors
	ErrCodeInvalidVersion    = "E120" // Missing or non-integer version
	ErrCodeMissingAttributes = "E121" // Collection without attributes
	ErrCodeInvalidType       = "E122" // Missing or unknown attribute type
	ErrCodeInvalidProperties = "E123" // Record properties misplaced or missing
	ErrCodeInvalidDefault    = "E124" // Bad default or default_func
	ErrCodeInvalidOption     = "E125" // Bad optional, nullable or enum
)

// MapFieldToErrorCode maps a compiler error field to an error code.
// Fields are dotted paths such as "collection.users.attributes.age.type".
func MapFieldToErrorCode(field string) string {
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}
	switch last {
	case "version":
		return ErrCodeInvalidVersion
	case "attributes":
		return ErrCodeMissingAttributes
	case "type":
		return ErrCodeInvalidType
	case "properties":
		return ErrCodeInvalidProperties
	case "default", "default_func":
		return ErrCodeInvalidDefault
	case "optional", "nullable", "enum":
		return ErrCodeInvalidOption
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
