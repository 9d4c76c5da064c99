package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers credential lifecycle changes regulators may
	// ask about: issuance and revocation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected or suspicious attempts, such as a
	// document already bound to another wallet.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// Subject is the lowercase wallet address the event concerns. ActorID is set
// for operator actions taken on a wallet's behalf. ClientIP is already
// truncated to a network prefix when it reaches the event.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	Subject   string        `json:"subject"`
	Nonce     uint64        `json:"nonce"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	ActorID   string        `json:"actor_id,omitempty"`
	ClientIP  string        `json:"client_ip,omitempty"`
	Client    string        `json:"client,omitempty"`
}

type AuditEvent string

const (
	EventAttestationIssued         AuditEvent = "attestation_issued"
	EventAttestationReused         AuditEvent = "attestation_reused"
	EventAttestationRevoked        AuditEvent = "attestation_revoked"
	EventIdentityDuplicateRejected AuditEvent = "identity_duplicate_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAttestationIssued:         CategoryCompliance,
	EventAttestationRevoked:        CategoryCompliance,
	EventIdentityDuplicateRejected: CategorySecurity,
	EventAttestationReused:         CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
