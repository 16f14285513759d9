// Package transitions holds the passport status state machine: the legal
// graph, the per-status metadata table and the role gates. The server applies
// it authoritatively; clients use the same tables for local pre-checks.
package transitions

import (
	"github.com/BearBump/PassportDesk/internal/models"
)

// Graph is an adjacency list current -> allowed next statuses.
type Graph map[models.Status][]models.Status

func DefaultGraph() Graph {
	return Graph{
		models.StatusCreated:         {models.StatusShipped, models.StatusRecalled},
		models.StatusShipped:         {models.StatusInService, models.StatusReturned, models.StatusRecalled},
		models.StatusInService:       {models.StatusReturnRequested, models.StatusRecycled, models.StatusRecalled},
		models.StatusReturnRequested: {models.StatusReturned, models.StatusInService},
		models.StatusReturned:        {models.StatusShipped, models.StatusRecycled},
		models.StatusRecalled:        {models.StatusReturned, models.StatusRecycled},
		models.StatusRecycled:        nil,
	}
}

func (g Graph) Next(from models.Status) []models.Status {
	out := make([]models.Status, len(g[from]))
	copy(out, g[from])
	return out
}

func (g Graph) Allows(from, to models.Status) bool {
	for _, s := range g[from] {
		if s == to {
			return true
		}
	}
	return false
}

// roleGates: кто может переводить паспорт в статус. ADMIN может всё.
var roleGates = map[models.Status][]models.Role{
	models.StatusShipped:         {models.RoleManufacturer, models.RoleLogistics},
	models.StatusInService:       {models.RoleServicePartner},
	models.StatusReturnRequested: {models.RoleServicePartner, models.RoleManufacturer},
	models.StatusReturned:        {models.RoleLogistics, models.RoleManufacturer},
	models.StatusRecycled:        {models.RoleRecycler},
	models.StatusRecalled:        {models.RoleManufacturer},
}

// RoleAllowed reports whether role may move a passport into to.
// UNVERIFIED is never allowed directly; it acts through a partner code's role.
func RoleAllowed(role models.Role, to models.Status) bool {
	if role == models.RoleAdmin {
		return true
	}
	for _, r := range roleGates[to] {
		if r == role {
			return true
		}
	}
	return false
}

// AllowedFor lists the transitions from current that an actor with role may
// propose. An UNVERIFIED actor sees every graph edge that some partner role
// could unlock, since the partner code is only checked on submission.
func (g Graph) AllowedFor(current models.Status, role models.Role) []models.Status {
	out := make([]models.Status, 0, len(g[current]))
	for _, to := range g[current] {
		if role == models.RoleUnverified {
			if len(roleGates[to]) > 0 {
				out = append(out, to)
			}
			continue
		}
		if RoleAllowed(role, to) {
			out = append(out, to)
		}
	}
	return out
}

var pointsByStatus = map[models.Status]int32{
	models.StatusInService: 10,
	models.StatusReturned:  5,
	models.StatusRecycled:  25,
}

// Points awarded for a single-passport (gamified) transition into to.
func Points(to models.Status) int32 {
	return pointsByStatus[to]
}
