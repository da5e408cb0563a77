package lctp

import (
	"strconv"
	"strings"
)

// Status codes.
const (
	StatusOK            = 200
	StatusBadRequest    = 400
	StatusInternalError = 500
)

// Canonical response contents.
const (
	ContentOK           = "OK"
	ContentPong         = "Pong"
	ContentDisconnected = "DISCONNECTED"
)

// Message is a response line.
type Message struct {
	StatusCode int
	Content    string
}

// Format renders the message as "<status> <content>".
// The separating space is always present, even with empty content.
// Line breaks in content are replaced by spaces to keep the message
// on a single line.
func (m Message) Format() string {
	content := m.Content
	if strings.ContainsAny(content, "\r\n") {
		content = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(content)
	}
	return strconv.Itoa(m.StatusCode) + " " + content
}

// String implements fmt.Stringer.
func (m Message) String() string {
	return m.Format()
}

// IsOK indicates a 2xx status.
func (m Message) IsOK() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}

// ParseMessage parses a response line. It never fails: the status falls
// back to 0 when it is absent or not a non-negative integer.
func ParseMessage(text string) Message {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Message{}
	}
	var msg Message
	if status, err := strconv.Atoi(fields[0]); err == nil && status >= 0 {
		msg.StatusCode = status
	}
	msg.Content = strings.Join(fields[1:], " ")
	return msg
}

// OK creates a 200 response, content defaults to "OK".
func OK(content string) Message {
	if content == "" {
		content = ContentOK
	}
	return Message{StatusCode: StatusOK, Content: content}
}

// BadRequest creates a 400 response.
func BadRequest(message string) Message {
	return Message{StatusCode: StatusBadRequest, Content: message}
}

// InternalError creates a 500 response.
func InternalError(message string) Message {
	return Message{StatusCode: StatusInternalError, Content: message}
}

// Pong is the response to PING.
func Pong() Message {
	return OK(ContentPong)
}

// Disconnected is the response to DISCONNECT. Stream transports close the
// connection after sending it.
func Disconnected() Message {
	return OK(ContentDisconnected)
}

// IsDisconnected checks whether m is the Disconnected response.
func (m Message) IsDisconnected() bool {
	return m.StatusCode == StatusOK && m.Content == ContentDisconnected
}
