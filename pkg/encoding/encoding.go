// Package encoding provides the encoders of the structured outputs,
// such as transcript dumps, in JSON, YAML or TOML.
package encoding

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"gopkg.in/yaml.v3"
)

// Format is the name of the encoding
type Format = string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatDefault is the default format
var FormatDefault = FormatYAML

// Encoder marshals and unmarshals values in a specific format
type Encoder interface {
	Format() Format
	Marshal(v any) ([]byte, error)
	// Unmarshal is lenient to a text produced by a model,
	// markdown code fences around the payload are removed.
	Unmarshal(bs []byte, ret any) error
}

// Formats returns the supported formats
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatTOML}
}

// ByFormat returns the encoder for the format,
// the name is case-insensitive and empty means FormatDefault.
func ByFormat(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		return ByFormat(FormatDefault)
	case FormatJSON:
		return JSON{}, nil
	case FormatYAML, "yml":
		return YAML{}, nil
	case FormatTOML:
		return TOML{}, nil
	}
	return nil, errors.Errorf("unsupported format: %s", format)
}

// JSON encoder
type JSON struct{}

func (JSON) Format() Format {
	return FormatJSON
}

func (JSON) Marshal(v any) ([]byte, error) {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(bs, '\n'), nil
}

func (JSON) Unmarshal(bs []byte, ret any) error {
	data := llmutils.CleanJSON(bs)
	return errors.WithStack(ljson.Unmarshal(data, ret))
}

// YAML encoder
type YAML struct{}

func (YAML) Format() Format {
	return FormatYAML
}

func (YAML) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func (YAML) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return errors.WithStack(yaml.Unmarshal(data, ret))
}

// TOML encoder, the value must encode to a table
type TOML struct{}

func (TOML) Format() Format {
	return FormatTOML
}

func (TOML) Marshal(v any) ([]byte, error) {
	bs, err := toml.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return bs, nil
}

func (TOML) Unmarshal(bs []byte, ret any) error {
	data := llmutils.BytesTrimBackticks(bs)
	return errors.WithStack(toml.Unmarshal(data, ret))
}
