// internal/protocol/expect.go
package protocol

import (
	"fmt"
	"strings"

	"ffb-control-service/internal/capability"
)

// ResponseKind identifies the shape of reply a command waits for
type ResponseKind int

const (
	ResponseNone ResponseKind = iota
	ResponseAck
	ResponseAckTrue
	ResponseVersion
	ResponseFieldDump
	ResponseCustom
)

// ExpectedResponse decides whether a received line answers the pending command.
// Replies carry no request IDs, so every shape must stay distinguishable from
// bare-integer telemetry lines and from the other shapes.
type ExpectedResponse struct {
	Kind      ResponseKind
	MinFields int
	name      string
	match     func(string) bool
}

// Ack matches "0" or "1"
func Ack() ExpectedResponse {
	return ExpectedResponse{Kind: ResponseAck}
}

// AckTrue matches only "1"
func AckTrue() ExpectedResponse {
	return ExpectedResponse{Kind: ResponseAckTrue}
}

// VersionLine matches lines starting with the firmware prefix
func VersionLine() ExpectedResponse {
	return ExpectedResponse{Kind: ResponseVersion}
}

// FieldDump matches lines with at least n space-separated tokens
func FieldDump(n int) ExpectedResponse {
	return ExpectedResponse{Kind: ResponseFieldDump, MinFields: n}
}

// Custom matches with an arbitrary predicate
func Custom(name string, fn func(string) bool) ExpectedResponse {
	return ExpectedResponse{Kind: ResponseCustom, name: name, match: fn}
}

// Matches reports whether line satisfies the expectation
func (e ExpectedResponse) Matches(line string) bool {
	line = strings.TrimSpace(line)
	switch e.Kind {
	case ResponseAck:
		return line == "0" || line == "1"
	case ResponseAckTrue:
		return line == "1"
	case ResponseVersion:
		return capability.IsFirmwareVersion(line)
	case ResponseFieldDump:
		return len(strings.Fields(line)) >= e.MinFields
	case ResponseCustom:
		return e.match != nil && e.match(line)
	default:
		return false
	}
}

func (e ExpectedResponse) String() string {
	switch e.Kind {
	case ResponseAck:
		return "ack"
	case ResponseAckTrue:
		return "ack(1)"
	case ResponseVersion:
		return "version"
	case ResponseFieldDump:
		return fmt.Sprintf("fields(>=%d)", e.MinFields)
	case ResponseCustom:
		return "custom(" + e.name + ")"
	default:
		return "none"
	}
}
