package lctp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageFormat(t *testing.T) {
	testCases := []struct {
		name   string
		msg    Message
		expect string
	}{
		{"ok", Message{200, "OK"}, "200 OK"},
		{"empty content keeps separator", Message{200, ""}, "200 "},
		{"multi word", Message{400, "unknown path foo/bar"}, "400 unknown path foo/bar"},
		{"line break flattened", Message{500, "device error:\nbus"}, "500 device error: bus"},
		{"zero", Message{}, "0 "},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.msg.Format())
		})
	}
}

func TestParseMessage(t *testing.T) {
	testCases := []struct {
		name   string
		text   string
		expect Message
	}{
		{"empty", "", Message{}},
		{"blank", "   ", Message{}},
		{"status only", "200", Message{200, ""}},
		{"status and separator", "200 ", Message{200, ""}},
		{"ok", "200 OK", Message{200, "OK"}},
		{"whitespace runs collapse", "400  bad \t request", Message{400, "bad request"}},
		{"non numeric status", "abc def", Message{0, "def"}},
		{"negative status", "-1 x", Message{0, "x"}},
		{"trailing newline", "200 Pong\n", Message{200, "Pong"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, ParseMessage(tc.text))
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	for _, msg := range []Message{
		{200, "OK"},
		{200, "Pong"},
		{400, "unknown path steer/left"},
		{500, "device error: i2c write 0x40: remote I/O error"},
		{200, "0.5 -1 3.25"},
	} {
		require.Equal(t, msg, ParseMessage(msg.Format()))
	}
}

func TestCanonicalResponses(t *testing.T) {
	require.Equal(t, "200 OK", OK("").Format())
	require.Equal(t, "200 42", OK("42").Format())
	require.Equal(t, "400 ", BadRequest("").Format())
	require.Equal(t, "400 nope", BadRequest("nope").Format())
	require.Equal(t, "500 broken", InternalError("broken").Format())
	require.Equal(t, "200 Pong", Pong().Format())
	require.Equal(t, "200 DISCONNECTED", Disconnected().Format())
	require.True(t, Disconnected().IsDisconnected())
	require.False(t, Pong().IsDisconnected())
	require.True(t, Pong().IsOK())
	require.False(t, BadRequest("x").IsOK())
}
