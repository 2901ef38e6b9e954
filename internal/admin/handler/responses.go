package handler

import (
	"time"

	"soulbind/pkg/domain"
	audit "soulbind/pkg/platform/audit"
)

// ConfigResponse is the HTTP response DTO for ledger configuration.
// Oracle and AuthWrapper are omitted until an owner sets them.
type ConfigResponse struct {
	ContractOwner domain.Principal  `json:"contract_owner"`
	Oracle        *domain.Principal `json:"oracle,omitempty"`
	AuthWrapper   *domain.Principal `json:"auth_wrapper,omitempty"`
	MaxTokens     uint64            `json:"max_tokens"`
	MintFee       uint64            `json:"mint_fee"`
	LastTokenID   domain.TokenID    `json:"last_token_id"`
}

// EventResponse is the HTTP response DTO for one audit event. It mirrors
// the Kafka sink payload so downstream consumers see one shape.
type EventResponse struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Principal string `json:"principal"`
	Action    string `json:"action"`
	Height    uint64 `json:"height"`
	TokenID   uint64 `json:"token_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	Device    string `json:"device,omitempty"`
}

// EventsListResponse wraps the list of audit events for HTTP response.
type EventsListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

func toEventResponse(event audit.Event) EventResponse {
	return EventResponse{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Principal: string(event.Principal),
		Action:    event.Action,
		Height:    uint64(event.Height),
		TokenID:   uint64(event.TokenID),
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		Device:    event.Device,
	}
}

func toEventsListResponse(events []audit.Event) EventsListResponse {
	out := make([]EventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, toEventResponse(event))
	}
	return EventsListResponse{Events: out, Total: len(out)}
}
