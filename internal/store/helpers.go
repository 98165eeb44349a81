package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// encodeJSONColumn serializes a map column, normalizing nil to "{}".
func encodeJSONColumn(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

// sessionColumns flattens a session for SQL insertion.
func sessionColumns(s models.Session) (inputs, optin string, lastActivity int64, err error) {
	inputs, err = encodeJSONColumn(s.Inputs)
	if err != nil {
		return "", "", 0, err
	}
	optin, err = encodeJSONColumn(s.OptinResult)
	if err != nil {
		return "", "", 0, err
	}
	return inputs, optin, s.LastActivity.UnixNano(), nil
}

// scanSessionColumns rebuilds a session's map fields and timestamp.
func scanSessionColumns(s *models.Session, inputs, optin string, lastActivity int64) error {
	s.LastActivity = time.Unix(0, lastActivity)
	if inputs != "" && inputs != "{}" {
		if err := json.Unmarshal([]byte(inputs), &s.Inputs); err != nil {
			return fmt.Errorf("failed to decode session inputs: %w", err)
		}
	}
	if optin != "" && optin != "{}" {
		if err := json.Unmarshal([]byte(optin), &s.OptinResult); err != nil {
			return fmt.Errorf("failed to decode session optin result: %w", err)
		}
	}
	return nil
}
