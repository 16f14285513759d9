package models

import "time"

type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusShipped         Status = "SHIPPED"
	StatusInService       Status = "IN_SERVICE"
	StatusReturnRequested Status = "RETURN_REQUESTED"
	StatusReturned        Status = "RETURNED"
	StatusRecycled        Status = "RECYCLED"
	StatusRecalled        Status = "RECALLED"
)

// AllStatuses в порядке жизненного цикла паспорта.
var AllStatuses = []Status{
	StatusCreated,
	StatusShipped,
	StatusInService,
	StatusReturnRequested,
	StatusReturned,
	StatusRecycled,
	StatusRecalled,
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleManufacturer   Role = "MANUFACTURER"
	RoleLogistics      Role = "LOGISTICS"
	RoleServicePartner Role = "SERVICE_PARTNER"
	RoleRecycler       Role = "RECYCLER"
	RoleUnverified     Role = "UNVERIFIED"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManufacturer, RoleLogistics, RoleServicePartner, RoleRecycler, RoleUnverified:
		return true
	}
	return false
}

type Passport struct {
	ID           string    `json:"uuid"`
	SerialNumber string    `json:"serial_number"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Actor struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type PartnerCode struct {
	Code      string
	Role      Role
	ExpiresAt time.Time
	MaxUses   int32
	Uses      int32
}

type TransitionRecord struct {
	ID            uint64
	PassportID    string
	FromStatus    Status
	ToStatus      Status
	ActorEmail    string
	ActorRole     Role
	Metadata      map[string]string
	PartnerCode   *string
	PointsAwarded int32
	CreatedAt     time.Time
}
