package websocket

import (
	"fmt"

	"github.com/google/uuid"
)

type socketMessageType int

const (
	Update socketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is the envelope for every frame exchanged with a
// connected client. The Id field allows a reply to be correlated with
// the message it answers; Origin and Target identify the client a
// message came from (or should be delivered to) and are never
// serialized over the wire.
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Id     int                    `json:"id"`
	Type   socketMessageType      `json:"type"`
	Origin *uuid.UUID             `json:"-"`
	Target *uuid.UUID             `json:"-"`
}

// ValidateArguments checks the message body contains each of the
// required keys, with a value loosely matching the primitive type
// named ("string", "int"/"number").
func (message *SocketMessage) ValidateArguments(required map[string]string) error {
	const errFmt = "failed to validate key '%v' with type '%v' - %#v"

	for key, expected := range required {
		v, ok := message.Body[key]
		if !ok {
			return fmt.Errorf("failed to validate key '%v' - key is missing", key)
		}

		switch expected {
		case "number", "int":
			if _, ok := v.(float64); !ok {
				return fmt.Errorf(errFmt, key, expected, v)
			}
		case "string":
			if fmt.Sprintf("%v", v) == "" {
				return fmt.Errorf(errFmt, key, expected, v)
			}
		default:
			return fmt.Errorf(errFmt, key, expected, "unknown type")
		}
	}

	return nil
}

// FormReply returns a NEW message addressed back at the origin of this
// one, carrying the same correlation Id.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]interface{}, replyType socketMessageType) *SocketMessage {
	if replyBody != nil {
		replyBody["command"] = message.Body
	}

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
