// Package contract holds the JSON wire types of the passport HTTP API,
// shared by the server handlers and the station client.
package contract

import (
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
)

const (
	PathBulkTransition = "/passports/bulk/transition"
	PathActionInfo     = "/passport/{id}/action-info"
	PathTransition     = "/passport/{id}/transition"
)

type BulkTransitionRequest struct {
	PassportIDs []string          `json:"passport_ids"`
	ToStatus    models.Status     `json:"to_status"`
	Metadata    map[string]string `json:"metadata"`
}

type BulkItemResult struct {
	PassportID string `json:"passport_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type BulkTransitionResponse struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
	// Pointer: an absent array must be distinguishable from an empty one.
	Results *[]BulkItemResult `json:"results,omitempty"`
}

type PassportView struct {
	UUID         string        `json:"uuid"`
	SerialNumber string        `json:"serial_number"`
	Status       models.Status `json:"status"`
}

type ActorView struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

type ActionInfoResponse struct {
	Passport           PassportView                                  `json:"passport"`
	Actor              ActorView                                     `json:"actor"`
	AllowedTransitions []models.Status                               `json:"allowed_transitions"`
	MetadataFields     map[models.Status][]transitions.MetadataField `json:"metadata_fields,omitempty"`
}

type TransitionRequest struct {
	ToStatus    models.Status     `json:"to_status"`
	Metadata    map[string]string `json:"metadata"`
	PartnerCode string            `json:"partner_code,omitempty"`
}

type TransitionResponse struct {
	Passport      PassportView `json:"passport"`
	PointsAwarded int32        `json:"points_awarded,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func ToPassportView(p *models.Passport) PassportView {
	if p == nil {
		return PassportView{}
	}
	return PassportView{UUID: p.ID, SerialNumber: p.SerialNumber, Status: p.Status}
}

const PathHistory = "/passport/{id}/history"

type HistoryItem struct {
	FromStatus    models.Status     `json:"from_status"`
	ToStatus      models.Status     `json:"to_status"`
	ActorEmail    string            `json:"actor_email"`
	ActorRole     models.Role       `json:"actor_role"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PointsAwarded int32             `json:"points_awarded,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}
