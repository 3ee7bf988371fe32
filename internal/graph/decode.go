package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode reads a backend analysis document and validates it. Decoding
// problems (malformed JSON, unknown enum strings, wrong types) are reported
// as a *SchemaError just like structural problems.
func Decode(r io.Reader) (*Dataset, error) {
	var d Dataset
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, &SchemaError{Problems: []error{fmt.Errorf("decode: %w", err)}}
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
