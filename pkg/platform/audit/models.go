package audit

import (
	"time"

	"soulbind/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryLedger covers changes to ledger records themselves. These are
	// the replayable history of the contract and require long retention.
	// Examples: identity wraps and revocations, token mints and burns.
	CategoryLedger EventCategory = "ledger"

	// CategorySecurity covers events relevant to security monitoring.
	// These feed into SIEM systems and alerting pipelines.
	// Examples: authority rotations, denied transfer attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	// These can be sampled or aggregated with shorter retention.
	// Examples: capacity and fee adjustments.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the services after a unit commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Principal is the actor whose ledger record the event describes.
	Principal domain.Principal
	Action    string
	// Height is the ledger height the operation ran at.
	Height domain.Height
	// TokenID is set for token-scoped events; zero otherwise (IDs start
	// at one).
	TokenID domain.TokenID
	Reason  string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
	// ActorID is the caller when different from Principal, e.g. the
	// oracle completing a user's wrap or the contract owner flipping a
	// token's status.
	ActorID string
	// Device is the parsed client device label, when the request carried
	// a User-Agent.
	Device string
}

type AuditEvent string

const (
	// Wrap workflow events
	EventIdentityWrapped AuditEvent = "identity_wrapped"
	EventIdentityRevoked AuditEvent = "identity_revoked"
	EventOracleRotated   AuditEvent = "oracle_rotated"

	// Token ledger events
	EventTokenMinted          AuditEvent = "token_minted"
	EventTokenBurned          AuditEvent = "token_burned"
	EventTokenMetadataUpdated AuditEvent = "token_metadata_updated"
	EventTokenStatusChanged   AuditEvent = "token_status_changed"
	EventTransferDenied       AuditEvent = "transfer_denied"

	// Configuration events
	EventAuthWrapperSet   AuditEvent = "auth_wrapper_set"
	EventMaxTokensUpdated AuditEvent = "max_tokens_updated"
	EventMintFeeUpdated   AuditEvent = "mint_fee_updated"
)

// eventCategories maps each audit event to its category.
// Ledger: record history, long retention.
// Security: authority changes and refused operations, SIEM routing.
// Operations: tuning knobs, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventIdentityWrapped:      CategoryLedger,
	EventIdentityRevoked:      CategoryLedger,
	EventTokenMinted:          CategoryLedger,
	EventTokenBurned:          CategoryLedger,
	EventTokenMetadataUpdated: CategoryLedger,
	EventTokenStatusChanged:   CategoryLedger,

	EventOracleRotated:  CategorySecurity,
	EventAuthWrapperSet: CategorySecurity,
	EventTransferDenied: CategorySecurity,

	EventMaxTokensUpdated: CategoryOperations,
	EventMintFeeUpdated:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
