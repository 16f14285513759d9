package transitions

import (
	"fmt"
	"strings"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrUnknownStatus       = errors.New("unknown status")
	ErrIllegalTransition   = errors.New("transition not allowed from current status")
	ErrRoleNotAllowed      = errors.New("role may not perform this transition")
	ErrPartnerCodeRequired = errors.New("partner code is required for unverified actors")
	ErrPartnerCodeInvalid  = errors.New("partner code is invalid, expired or exhausted")
	ErrMissingMetadata     = errors.New("required metadata missing")
)

// ValidateProposal is the client-side pre-check run before a transition is
// submitted. allowed is the list the server returned for this passport/actor.
func ValidateProposal(actor models.Actor, to models.Status, allowed []models.Status, metadata map[string]string, partnerCode string) error {
	if !to.Valid() {
		return errors.Wrapf(ErrUnknownStatus, "%q", to)
	}
	permitted := false
	for _, s := range allowed {
		if s == to {
			permitted = true
			break
		}
	}
	if !permitted {
		return errors.Wrapf(ErrIllegalTransition, "to %s", to)
	}
	if actor.Role == models.RoleUnverified && strings.TrimSpace(partnerCode) == "" {
		return ErrPartnerCodeRequired
	}
	if missing := MissingRequired(to, metadata); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	return nil
}

// Authority decides transitions server-side.
type Authority struct {
	graph Graph
}

func NewAuthority(g Graph) *Authority {
	if g == nil {
		g = DefaultGraph()
	}
	return &Authority{graph: g}
}

func (a *Authority) Graph() Graph {
	return a.graph
}

func (a *Authority) AllowedFor(current models.Status, role models.Role) []models.Status {
	return a.graph.AllowedFor(current, role)
}

// Authorize checks one transition. effectiveRole is the actor's role, or the
// partner code's role for an UNVERIFIED actor whose code has been redeemed.
func (a *Authority) Authorize(effectiveRole models.Role, current, to models.Status, metadata map[string]string) error {
	if !to.Valid() {
		return errors.Wrapf(ErrUnknownStatus, "%q", to)
	}
	if !a.graph.Allows(current, to) {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s", current, to)
	}
	if !RoleAllowed(effectiveRole, to) {
		return errors.Wrapf(ErrRoleNotAllowed, "%s -> %s", effectiveRole, to)
	}
	if missing := MissingRequired(to, metadata); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	return nil
}
