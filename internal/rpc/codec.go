package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformed marks documents or requests whose shape does not match what
// the receiver expects.
var ErrMalformed = errors.New("malformed document")

// Validator is implemented by document structs that check required fields
// after decoding.
type Validator interface {
	Validate() error
}

// EncodeDocument converts a JSON-tagged struct (or map) into a Struct.
func EncodeDocument(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return StructFromJSON(raw)
}

// StructFromJSON parses a JSON object into a Struct.
func StructFromJSON(raw []byte) (*structpb.Struct, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrMalformed)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// DocumentJSON renders s as a JSON object. Whole numbers are written without
// exponent so they decode into int64 fields.
func DocumentJSON(s *structpb.Struct) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformed)
	}
	return json.Marshal(s.AsMap())
}

// DecodeDocument decodes s into dst strictly: unknown fields and type
// mismatches fail, and dst.Validate runs when dst implements Validator.
func DecodeDocument(s *structpb.Struct, dst any) error {
	raw, err := DocumentJSON(s)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, dst)
}

// DecodeJSON is DecodeDocument for an already serialized document.
func DecodeJSON(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformed, name)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrMalformed, name)
	}
	return str.StringValue, nil
}

func intField(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformed, name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a number", ErrMalformed, name)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrMalformed, name)
	}
	return int64(f), nil
}

func structField(s *structpb.Struct, name string) (*structpb.Struct, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, name)
	}
	st := v.GetStructValue()
	if st == nil {
		return nil, fmt.Errorf("%w: %q must be an object", ErrMalformed, name)
	}
	return st, nil
}
