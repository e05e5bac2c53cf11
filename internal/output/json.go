// Package output writes the JSON documents hooktrace prints on stdout: the
// single-line hook response for the host and the success/error envelope of
// the operator commands.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dotcommander/hooktrace/internal/models"
)

// EnvPrettyJSON switches operator command output to indented JSON.
const EnvPrettyJSON = "HOOKTRACE_PRETTY_JSON"

// Response is the envelope of every operator command.
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

type recoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Success wraps data in a success envelope.
func Success(data any) Response {
	return Response{SchemaVersion: "v1", Success: true, Data: data}
}

// Error wraps err. Structured errors also fill the code, context and
// suggested action.
func Error(err error) Response {
	resp := Response{SchemaVersion: "v1", Success: false, Error: err.Error()}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config selects where and how JSON is written.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig writes to stdout, indented when HOOKTRACE_PRETTY_JSON is set.
func DefaultConfig() Config {
	v := os.Getenv(EnvPrettyJSON)
	return Config{Writer: os.Stdout, Pretty: v == "1" || v == "true"}
}

// PrintWith encodes v as one JSON document.
func PrintWith(cfg Config, v any) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print writes v to stdout with the default config.
func Print(v any) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success envelope.
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error envelope.
func PrintError(err error) error {
	return Print(Error(err))
}

// WriteHookResponse writes the host response as one compact JSON line. It is
// the only thing a hook invocation ever prints on stdout.
func WriteHookResponse(w io.Writer, resp models.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode hook response: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write hook response: %w", err)
	}
	return nil
}

// WriteFallback writes the permissive fallback response.
func WriteFallback(w io.Writer) error {
	return WriteHookResponse(w, models.FallbackResponse())
}
