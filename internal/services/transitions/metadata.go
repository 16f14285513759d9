package transitions

import (
	"sort"
	"strings"

	"github.com/BearBump/PassportDesk/internal/models"
)

const (
	MetaCarrier              = "carrier"
	MetaTrackingNumber       = "tracking_number"
	MetaVehicleVIN           = "vehicle_vin"
	MetaReturnReason         = "return_reason"
	MetaCondition            = "condition"
	MetaRecyclingCertificate = "recycling_certificate"
	MetaRecallReference      = "recall_reference"
)

type MetadataField struct {
	Key      string `json:"key"`
	Required bool   `json:"required"`
}

var metadataFields = map[models.Status][]MetadataField{
	models.StatusCreated:         nil,
	models.StatusShipped:         {{Key: MetaCarrier, Required: true}, {Key: MetaTrackingNumber}},
	models.StatusInService:       {{Key: MetaVehicleVIN, Required: true}},
	models.StatusReturnRequested: {{Key: MetaReturnReason, Required: true}},
	models.StatusReturned:        {{Key: MetaCondition}},
	models.StatusRecycled:        {{Key: MetaRecyclingCertificate, Required: true}},
	models.StatusRecalled:        {{Key: MetaRecallReference, Required: true}},
}

// Fields returns the metadata fields presented for a target status.
func Fields(to models.Status) []MetadataField {
	out := make([]MetadataField, len(metadataFields[to]))
	copy(out, metadataFields[to])
	return out
}

func FieldsFor(statuses []models.Status) map[models.Status][]MetadataField {
	out := make(map[models.Status][]MetadataField, len(statuses))
	for _, s := range statuses {
		out[s] = Fields(s)
	}
	return out
}

// MissingRequired returns required keys of to that are absent or blank in
// metadata, sorted.
func MissingRequired(to models.Status, metadata map[string]string) []string {
	var missing []string
	for _, f := range metadataFields[to] {
		if f.Required && strings.TrimSpace(metadata[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	sort.Strings(missing)
	return missing
}

// Clean trims values and drops keys that are blank or not part of the
// status's field set.
func Clean(to models.Status, metadata map[string]string) map[string]string {
	out := make(map[string]string)
	for _, f := range metadataFields[to] {
		if v := strings.TrimSpace(metadata[f.Key]); v != "" {
			out[f.Key] = v
		}
	}
	return out
}
