package lctp

import (
	"strings"
)

// Verb is the request verb.
type Verb string

// Verbs.
const (
	VerbGet        Verb = "GET"
	VerbSet        Verb = "SET"
	VerbPing       Verb = "PING"
	VerbDisconnect Verb = "DISCONNECT"
)

// Request is a parsed request line.
type Request struct {
	Verb  Verb
	Path  Path
	Value string
}

// Path is a slash delimited token sequence, e.g. "steer/angle".
type Path []string

// String joins the tokens with '/'.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// ParsePath validates and splits a path.
func ParsePath(s string) (Path, bool) {
	if s == "" {
		return nil, false
	}
	tokens := strings.Split(s, "/")
	for _, token := range tokens {
		if !validToken(token) {
			return nil, false
		}
	}
	return Path(tokens), true
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// ParseRequest parses a request line "<VERB> <path> [value]".
// Verbs are case-insensitive; paths are lower case.
func ParseRequest(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyRequest
	}
	req := &Request{Verb: Verb(strings.ToUpper(fields[0]))}
	args := fields[1:]
	switch req.Verb {
	case VerbPing, VerbDisconnect:
		if len(args) > 0 {
			return nil, &ProtocolError{Line: line, Reason: string(req.Verb) + " takes no arguments"}
		}
		return req, nil
	case VerbGet:
		if len(args) != 1 {
			return nil, &ProtocolError{Line: line, Reason: "GET requires exactly one path"}
		}
	case VerbSet:
		if len(args) < 2 {
			return nil, &ProtocolError{Line: line, Reason: "SET requires a path and a value"}
		}
		req.Value = strings.Join(args[1:], " ")
	default:
		return nil, &ProtocolError{Line: line, Reason: "unknown verb"}
	}
	path, ok := ParsePath(args[0])
	if !ok {
		return nil, &ProtocolError{Line: line, Reason: "invalid path"}
	}
	req.Path = path
	return req, nil
}

// Format renders the request line without line terminator.
func (r *Request) Format() string {
	var sb strings.Builder
	sb.WriteString(string(r.Verb))
	if len(r.Path) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(r.Path.String())
	}
	if r.Value != "" {
		sb.WriteByte(' ')
		sb.WriteString(r.Value)
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (r *Request) String() string {
	return r.Format()
}

// Get creates a GET request. A path which doesn't parse is kept verbatim
// so the receiver reports it.
func Get(path string) *Request {
	return &Request{Verb: VerbGet, Path: rawPath(path)}
}

// Set creates a SET request, keeping an invalid path like Get.
func Set(path, value string) *Request {
	return &Request{Verb: VerbSet, Path: rawPath(path), Value: value}
}

func rawPath(s string) Path {
	if p, ok := ParsePath(s); ok {
		return p
	}
	return Path{s}
}
