package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

var ErrNoType = errors.New("message has no type")

var validate = validator.New(validator.WithRequiredStructEnabled())

// PeekType reads only the type tag of a raw message.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", ErrNoType
	}
	return env.Type, nil
}

// Decode unmarshals data into v and validates its struct tags.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// Encode returns nil when v cannot be marshaled; callers treat nil as nothing to send.
func Encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "protocol").Msg("encode marshal")
		return nil
	}
	return b
}
