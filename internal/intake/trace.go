// Package intake feeds sensor traces published over MQTT into the sensor
// activity path.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/detection"
)

// Trace is one device upload. Devices may also publish the bare sample array.
type Trace struct {
	SensorData []detection.Sample `json:"sensorData"`
	Strategy   string             `json:"strategy,omitempty"`
}

// DecodeTrace parses a trace payload.
func DecodeTrace(payload []byte) (Trace, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Trace{}, errors.New("empty payload")
	}

	var trace Trace
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &trace.SensorData); err != nil {
			return Trace{}, fmt.Errorf("decode samples: %w", err)
		}
	} else if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, fmt.Errorf("decode trace: %w", err)
	}

	if len(trace.SensorData) == 0 {
		return Trace{}, detection.ErrEmptyTrace
	}
	return trace, nil
}

// UserFromTopic extracts the user id from a topic shaped like
// sensors/<user>/trace.
func UserFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("topic %q has no user segment", topic)
	}
	user := strings.TrimSpace(parts[1])
	if user == "" || user == "+" || user == "#" {
		return "", fmt.Errorf("topic %q has no user segment", topic)
	}
	return user, nil
}
