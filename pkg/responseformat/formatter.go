package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format names an output encoding.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
	Text    Format = "text"
)

// TextWriter is implemented by values that can render themselves as plain
// tables.
type TextWriter interface {
	WriteText(w io.Writer) error
}

// ParseFormat maps a format name to a Format. The empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, MsgPack, Text:
		return f, nil
	case "":
		return JSON, nil
	}
	return "", fmt.Errorf("unsupported output format %q: use json, msgpack or text", s)
}

// Formatter handles encoding reports in JSON, MessagePack or text
type Formatter struct {
	indent bool
}

// NewFormatter creates a new formatter. indent pretty-prints JSON output.
func NewFormatter(indent bool) *Formatter {
	return &Formatter{indent: indent}
}

// Write encodes data to w in the given format. Text output requires data to
// implement TextWriter.
func (f *Formatter) Write(w io.Writer, format Format, data any) error {
	switch format {
	case JSON, "":
		return f.writeJSON(w, data)
	case MsgPack:
		return f.writeMsgPack(w, data)
	case Text:
		tw, ok := data.(TextWriter)
		if !ok {
			return fmt.Errorf("%T cannot be rendered as text", data)
		}
		return tw.WriteText(w)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

func (f *Formatter) writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if f.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

func (f *Formatter) writeMsgPack(w io.Writer, data any) error {
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
