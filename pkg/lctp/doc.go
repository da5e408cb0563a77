// Package lctp implements the LegoCar Transfer Protocol.
//
// LCTP is line based. A client sends one request line
//
//	<VERB> <path> [value]
//
// and receives exactly one response line
//
//	<status> <content>
//
// Status codes follow the HTTP convention: 200 for success, 400 for a
// malformed command or unknown path, 500 when a device fails to carry out
// a command.
package lctp
