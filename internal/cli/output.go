package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xraph/entitle/entitlement"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// NewOutputFormatter creates a formatter writing to w.
func NewOutputFormatter(format string, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: format, Writer: w}
}

// JSON writes v as indented JSON.
func (f *OutputFormatter) JSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result writes an entitlement result.
func (f *OutputFormatter) Result(clientKey string, res entitlement.Result) error {
	if f.Format == "json" {
		return f.JSON(res)
	}
	packs := make([]string, len(res.Packs))
	for i, p := range res.Packs {
		packs[i] = p.String()
	}
	list := strings.Join(packs, ", ")
	if list == "" {
		list = "(none)"
	}
	_, err := fmt.Fprintf(f.Writer, "client:       %s\npacks:        %s\nsubscription: %t\n",
		clientKey, list, res.SubscriptionActive)
	return err
}

// Line writes a single text line, or {key: value} in JSON mode.
func (f *OutputFormatter) Line(key, value string) error {
	if f.Format == "json" {
		return f.JSON(map[string]string{key: value})
	}
	_, err := fmt.Fprintln(f.Writer, value)
	return err
}
