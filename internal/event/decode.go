package event

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type header struct {
	Type Tag `json:"type"`
}

// Pointer fields let "required" distinguish a missing field from an empty one.
type chatMessageFrame struct {
	Content *string `json:"content" validate:"required"`
}

type editorDeltaFrame struct {
	Content *string         `json:"content" validate:"required"`
	Cursor  json.RawMessage `json:"cursor"`
}

type typingStateFrame struct {
	IsTyping *bool `json:"isTyping" validate:"required"`
}

// Decoder turns raw client frames into Inbound events.
type Decoder struct {
	defaultTag Tag
}

// NewDecoder creates a Decoder. Frames without a "type" field are decoded as
// defaultTag; pass "" to reject them.
func NewDecoder(defaultTag Tag) *Decoder {
	return &Decoder{defaultTag: defaultTag}
}

// Decode parses and validates one frame. Only client-emittable tags are
// accepted; every failure wraps ErrMalformedEvent.
func (d *Decoder) Decode(raw []byte) (Inbound, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	tag := h.Type
	if tag == "" {
		tag = d.defaultTag
	}

	switch tag {
	case ChatMessage:
		var f chatMessageFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Inbound{}, err
		}
		return Inbound{Tag: tag, Content: *f.Content}, nil

	case EditorDelta:
		var f editorDeltaFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Inbound{}, err
		}
		return Inbound{Tag: tag, Content: *f.Content, Cursor: f.Cursor}, nil

	case TypingState:
		var f typingStateFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Inbound{}, err
		}
		return Inbound{Tag: tag, IsTyping: *f.IsTyping}, nil

	case "":
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return Inbound{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedEvent, tag)
	}
}

func decodeFrame(raw []byte, frame any) error {
	if err := json.Unmarshal(raw, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
