package chat

import "agentdeck/internal/protocol"

// Severity is the UI treatment an application error receives. There is no
// raw/unformatted bucket: every gateway error lands in exactly one of these.
type Severity string

const (
	// SeverityBlocking halts interaction until the user resolves the
	// condition outside the conversation (re-auth, accept terms).
	SeverityBlocking Severity = "blocking"
	// SeverityInline attaches to the conversation without blocking it.
	SeverityInline Severity = "inline"
	// SeverityBanner is a non-blocking warning offering "start new session".
	SeverityBanner Severity = "warning-banner"
)

// Classify maps a gateway error code to its severity. Total by construction:
// unknown codes default to inline.
func Classify(code string) Severity {
	switch code {
	case protocol.CodeAgentAuthRequired,
		protocol.CodeTermsAcceptanceRequired,
		protocol.CodeInvalidCredential:
		return SeverityBlocking
	case protocol.CodeContextBudgetWarning:
		return SeverityBanner
	default:
		return SeverityInline
	}
}
