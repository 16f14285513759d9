package transitions

import (
	"errors"
	"testing"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph_CoversAllStatuses(t *testing.T) {
	g := DefaultGraph()
	for _, s := range models.AllStatuses {
		_, ok := g[s]
		require.True(t, ok, "status %s has no adjacency entry", s)
		for _, to := range g[s] {
			require.True(t, to.Valid())
			require.NotEqual(t, s, to)
		}
	}
	require.Empty(t, g.Next(models.StatusRecycled))
}

func TestGraph_Next_ReturnsCopy(t *testing.T) {
	g := DefaultGraph()
	n := g.Next(models.StatusCreated)
	n[0] = models.StatusRecycled
	require.Equal(t, models.StatusShipped, g[models.StatusCreated][0])
}

func TestGraph_AllowedFor(t *testing.T) {
	g := DefaultGraph()

	require.Equal(t,
		[]models.Status{models.StatusShipped, models.StatusRecalled},
		g.AllowedFor(models.StatusCreated, models.RoleAdmin))
	require.Equal(t,
		[]models.Status{models.StatusShipped},
		g.AllowedFor(models.StatusCreated, models.RoleLogistics))
	require.Empty(t, g.AllowedFor(models.StatusCreated, models.RoleRecycler))

	// UNVERIFIED видит всё, что может открыть partner code
	require.Equal(t,
		[]models.Status{models.StatusReturnRequested, models.StatusRecycled, models.StatusRecalled},
		g.AllowedFor(models.StatusInService, models.RoleUnverified))
}

func TestFields_MetadataTable(t *testing.T) {
	require.Equal(t, []MetadataField{{Key: MetaCarrier, Required: true}, {Key: MetaTrackingNumber}}, Fields(models.StatusShipped))
	require.Equal(t, []MetadataField{{Key: MetaVehicleVIN, Required: true}}, Fields(models.StatusInService))
	require.Equal(t, []MetadataField{{Key: MetaRecyclingCertificate, Required: true}}, Fields(models.StatusRecycled))
	require.Empty(t, Fields(models.StatusCreated))

	m := FieldsFor([]models.Status{models.StatusShipped, models.StatusReturned})
	require.Len(t, m, 2)
	require.Equal(t, MetaCondition, m[models.StatusReturned][0].Key)
}

func TestMissingRequiredAndClean(t *testing.T) {
	require.Equal(t, []string{MetaCarrier}, MissingRequired(models.StatusShipped, map[string]string{MetaCarrier: "   "}))
	require.Empty(t, MissingRequired(models.StatusShipped, map[string]string{MetaCarrier: "DHL"}))
	require.Empty(t, MissingRequired(models.StatusReturned, nil))

	got := Clean(models.StatusShipped, map[string]string{
		MetaCarrier:        " DHL ",
		MetaTrackingNumber: "",
		"unrelated":        "x",
	})
	require.Equal(t, map[string]string{MetaCarrier: "DHL"}, got)
}

func TestValidateProposal(t *testing.T) {
	allowed := []models.Status{models.StatusShipped, models.StatusRecalled}
	verified := models.Actor{Email: "m@example.com", Role: models.RoleManufacturer}
	unverified := models.Actor{Email: "u@example.com", Role: models.RoleUnverified}
	meta := map[string]string{MetaCarrier: "DHL"}

	require.NoError(t, ValidateProposal(verified, models.StatusShipped, allowed, meta, ""))

	err := ValidateProposal(verified, models.StatusInService, allowed, meta, "")
	require.True(t, errors.Is(err, ErrIllegalTransition))

	err = ValidateProposal(verified, models.Status("LOST"), allowed, meta, "")
	require.True(t, errors.Is(err, ErrUnknownStatus))

	err = ValidateProposal(unverified, models.StatusShipped, allowed, meta, "  ")
	require.ErrorIs(t, err, ErrPartnerCodeRequired)
	require.NoError(t, ValidateProposal(unverified, models.StatusShipped, allowed, meta, "PARTNER-1"))

	err = ValidateProposal(verified, models.StatusShipped, allowed, map[string]string{}, "")
	require.ErrorIs(t, err, ErrMissingMetadata)
	require.Contains(t, err.Error(), MetaCarrier)
}

func TestAuthority_Authorize(t *testing.T) {
	a := NewAuthority(nil)
	meta := map[string]string{MetaCarrier: "DHL"}

	require.NoError(t, a.Authorize(models.RoleLogistics, models.StatusCreated, models.StatusShipped, meta))
	require.NoError(t, a.Authorize(models.RoleAdmin, models.StatusCreated, models.StatusShipped, meta))

	require.ErrorIs(t, a.Authorize(models.RoleLogistics, models.StatusRecycled, models.StatusShipped, meta), ErrIllegalTransition)
	require.ErrorIs(t, a.Authorize(models.RoleRecycler, models.StatusCreated, models.StatusShipped, meta), ErrRoleNotAllowed)
	require.ErrorIs(t, a.Authorize(models.RoleUnverified, models.StatusCreated, models.StatusShipped, meta), ErrRoleNotAllowed)
	require.ErrorIs(t, a.Authorize(models.RoleLogistics, models.StatusCreated, models.StatusShipped, nil), ErrMissingMetadata)
	require.ErrorIs(t, a.Authorize(models.RoleAdmin, models.StatusCreated, models.Status("LOST"), nil), ErrUnknownStatus)
}

func TestPoints(t *testing.T) {
	require.Equal(t, int32(10), Points(models.StatusInService))
	require.Equal(t, int32(25), Points(models.StatusRecycled))
	require.Zero(t, Points(models.StatusShipped))
}
