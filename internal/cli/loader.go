package cli

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/vantir/abilitymod/internal/mod"
)

//go:embed schema.cue
var schemaCUE string

// Error codes surfaced by the loader and the commands built on it.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E002" // Path not found
	ErrCodeReadFailed   = "E003" // File unreadable
	ErrCodeBadFormat    = "E004" // Unsupported document extension
	ErrCodeSchemaError  = "E005" // CUE schema validation failed
	ErrCodeParseFailed  = "E006" // Codec rejected the document
	ErrCodeDecodeFailed = "E007" // Resource buffer undecodable
	ErrCodeWriteFailed  = "E008" // Output file unwritable
	ErrCodeStoreError   = "E009" // Profile store failure
)

// LoadError is an error with a stable code for structured CLI output.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError is one schema violation with its CUE position.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// LoadDocument reads a modification document from a .json, .yaml or .yml
// file, validates it against the embedded CUE schema, and parses it through
// the exchange codec. Any failure fails the whole import: there is no
// partial result.
func LoadDocument(path string) (*mod.Document, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("document not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	jsonData, err := toJSON(path, raw)
	if err != nil {
		return nil, err
	}

	if verrs, err := ValidateDocumentJSON(jsonData); err != nil {
		return nil, err
	} else if len(verrs) > 0 {
		return nil, &LoadError{Code: ErrCodeSchemaError, Message: formatValidationErrors(verrs)}
	}

	var doc mod.Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: err.Error()}
	}
	return &doc, nil
}

// toJSON normalizes the supported document formats to JSON bytes.
func toJSON(path string, raw []byte) ([]byte, error) {
	switch filepath.Ext(path) {
	case ".json":
		return raw, nil
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}
		}
		data, err := json.Marshal(normalizeYAML(v))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("converting YAML: %v", err)}
		}
		return data, nil
	default:
		return nil, &LoadError{Code: ErrCodeBadFormat, Message: fmt.Sprintf("unsupported document format %q (want .json, .yaml, .yml)", filepath.Ext(path))}
	}
}

// normalizeYAML rewrites yaml.v3's map[string]any trees so json.Marshal can
// serialize them; non-string keys are rejected later by schema validation.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return v
	}
}

// ValidateDocumentJSON checks JSON bytes against the embedded CUE schema.
// Returns the list of violations (empty when the document is valid); a
// non-nil error means the validation itself could not run.
func ValidateDocumentJSON(data []byte) ([]ValidationError, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	docSchema := schema.LookupPath(cue.ParsePath("#Document"))
	if err := docSchema.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Document: %w", err)
	}

	expr, err := cuejson.Extract("document.json", data)
	if err != nil {
		return []ValidationError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}, nil
	}
	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return []ValidationError{{Message: err.Error()}}, nil
	}

	unified := docSchema.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		var out []ValidationError
		for _, e := range cueerrors.Errors(err) {
			out = append(out, ValidationError{
				Path:    cuePathString(e.Path()),
				Message: e.Error(),
			})
		}
		return out, nil
	}
	return nil, nil
}

func cuePathString(parts []string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(p)
	}
	return buf.String()
}

func formatValidationErrors(verrs []ValidationError) string {
	var buf bytes.Buffer
	buf.WriteString("document failed schema validation:")
	for _, v := range verrs {
		buf.WriteString("\n  ")
		if v.Path != "" {
			buf.WriteString(v.Path)
			buf.WriteString(": ")
		}
		buf.WriteString(v.Message)
	}
	return buf.String()
}
