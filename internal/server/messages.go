package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/campus-connect/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	SendMessage *SendMessage `json:"send_message,omitempty"`
}

type SendMessage struct {
	Content string `json:"content"`
}

type ServerMessage struct {
	BaseMessage
	Response       *Response          `json:"response,omitempty"`
	ReceiveMessage *types.ChatMessage `json:"receive_message,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

func receiveMessage(msg types.ChatMessage) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: Now(),
		},
		ReceiveMessage: &msg,
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, "invalid message format")
}

func ErrEmptyContent(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, "message content is required")
}

func ErrUnauthenticatedSender(id int) *ServerMessage {
	return errResponse(id, http.StatusUnauthorized, "unauthenticated")
}

func ErrConnectionNotOpen(id int) *ServerMessage {
	return errResponse(id, http.StatusGone, "connection is closed")
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "internal server error")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
