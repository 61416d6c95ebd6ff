package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"toolwatch/internal/model"
)

// MaxUserLabel bounds the identity label length accepted from producers.
const MaxUserLabel = 256

// ErrInvalidTick is wrapped by every decoding and validation failure.
var ErrInvalidTick = errors.New("invalid tick")

// DecodeTick parses one JSON tick and validates it.
func DecodeTick(data []byte) (model.Tick, error) {
	var t model.Tick
	if err := json.Unmarshal(data, &t); err != nil {
		return model.Tick{}, fmt.Errorf("%w: %v", ErrInvalidTick, err)
	}
	if err := Validate(t); err != nil {
		return model.Tick{}, err
	}
	return t, nil
}

// DecodeTicks parses either a JSON array of ticks or newline-delimited JSON.
func DecodeTicks(data []byte) ([]model.Tick, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidTick)
	}

	if trimmed[0] == '[' {
		var ticks []model.Tick
		if err := json.Unmarshal(trimmed, &ticks); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTick, err)
		}
		for i, t := range ticks {
			if err := Validate(t); err != nil {
				return nil, fmt.Errorf("tick %d: %w", i, err)
			}
		}
		return ticks, nil
	}

	var ticks []model.Tick
	for i, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		t, err := DecodeTick(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// Validate rejects ticks the tracker must never see.
func Validate(t model.Tick) error {
	if len(t.User) > MaxUserLabel {
		return fmt.Errorf("%w: user label longer than %d bytes", ErrInvalidTick, MaxUserLabel)
	}
	if t.Drawer != nil && strings.TrimSpace(t.Drawer.Identifier) != t.Drawer.Identifier {
		return fmt.Errorf("%w: drawer identifier has surrounding whitespace", ErrInvalidTick)
	}
	for _, id := range t.Tools {
		if id == "" {
			return fmt.Errorf("%w: empty tool identifier", ErrInvalidTick)
		}
	}
	return nil
}
