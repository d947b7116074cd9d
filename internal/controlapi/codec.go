package controlapi

import (
	"encoding/json"
	"fmt"
)

// Codec is a connect codec for the plain Go types in this package. It
// replaces connect's protobuf-only JSON codec under the same name.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(message any) ([]byte, error) {
	b, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", message, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return fmt.Errorf("unmarshal %T: %w", message, err)
	}
	return nil
}
