package passports_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/internal/actiontoken"
	"github.com/BearBump/PassportDesk/internal/api/contract"
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/passports"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

var (
	errTokenScope = errors.New("token is not valid for this passport")
	errBadBody    = errors.New("malformed request body")
)

type Service interface {
	ActionInfo(ctx context.Context, id string, actor models.Actor) (*passports.ActionInfo, error)
	Transition(ctx context.Context, id string, actor models.Actor, req passports.TransitionRequest) (*models.Passport, int32, error)
	BulkTransition(ctx context.Context, actor models.Actor, req passports.BulkRequest) (models.BulkResult, error)
	History(ctx context.Context, id string, limit, offset int) ([]*models.TransitionRecord, error)
}

type TokenVerifier interface {
	Verify(token string, now time.Time) (actiontoken.Claims, error)
}

type PassportsAPI struct {
	svc    Service
	tokens TokenVerifier
	now    func() time.Time
}

func New(svc Service, tokens TokenVerifier) *PassportsAPI {
	return &PassportsAPI{svc: svc, tokens: tokens, now: time.Now}
}

func (a *PassportsAPI) Register(r chi.Router) {
	r.Post(contract.PathBulkTransition, a.BulkTransition)
	r.Get(contract.PathActionInfo, a.ActionInfo)
	r.Post(contract.PathTransition, a.Transition)
	r.Get(contract.PathHistory, a.History)
}

func (a *PassportsAPI) BulkTransition(w http.ResponseWriter, r *http.Request) {
	claims, err := a.claims(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// bulk только для токенов актора, не привязанных к паспорту
	if claims.PassportID != "" {
		writeError(w, errTokenScope)
		return
	}

	var req contract.BulkTransitionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := a.svc.BulkTransition(r.Context(), claims.Actor(), passports.BulkRequest{
		PassportIDs: req.PassportIDs,
		To:          req.ToStatus,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]contract.BulkItemResult, 0, len(res.Results))
	for _, ur := range res.Results {
		items = append(items, contract.BulkItemResult{PassportID: ur.PassportID, Success: ur.Success, Error: ur.Error})
	}
	writeJSON(w, http.StatusOK, contract.BulkTransitionResponse{
		SuccessCount: res.SuccessCount,
		FailedCount:  res.FailedCount,
		Results:      &items,
	})
}

func (a *PassportsAPI) ActionInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims, err := a.claimsFor(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := a.svc.ActionInfo(r.Context(), id, claims.Actor())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.ActionInfoResponse{
		Passport:           contract.ToPassportView(info.Passport),
		Actor:              contract.ActorView{Email: info.Actor.Email, Role: info.Actor.Role},
		AllowedTransitions: info.AllowedTransitions,
		MetadataFields:     info.MetadataFields,
	})
}

func (a *PassportsAPI) Transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims, err := a.claimsFor(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req contract.TransitionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, points, err := a.svc.Transition(r.Context(), id, claims.Actor(), passports.TransitionRequest{
		To:          req.ToStatus,
		Metadata:    req.Metadata,
		PartnerCode: req.PartnerCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.TransitionResponse{
		Passport:      contract.ToPassportView(p),
		PointsAwarded: points,
	})
}

func (a *PassportsAPI) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.claimsFor(r, id); err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recs, err := a.svc.History(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := contract.HistoryResponse{Items: make([]contract.HistoryItem, 0, len(recs))}
	for _, rec := range recs {
		out.Items = append(out.Items, contract.HistoryItem{
			FromStatus:    rec.FromStatus,
			ToStatus:      rec.ToStatus,
			ActorEmail:    rec.ActorEmail,
			ActorRole:     rec.ActorRole,
			Metadata:      rec.Metadata,
			PointsAwarded: rec.PointsAwarded,
			CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// claims reads the token from the Authorization header, falling back to the
// token query parameter used by magic links.
func (a *PassportsAPI) claims(r *http.Request) (actiontoken.Claims, error) {
	tok := ""
	if h := r.Header.Get("Authorization"); h != "" {
		tok = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok == "" {
		tok = r.URL.Query().Get("token")
	}
	if tok == "" {
		return actiontoken.Claims{}, actiontoken.ErrInvalid
	}
	return a.tokens.Verify(tok, a.now())
}

func (a *PassportsAPI) claimsFor(r *http.Request, passportID string) (actiontoken.Claims, error) {
	c, err := a.claims(r)
	if err != nil {
		return c, err
	}
	if !c.BoundTo(passportID) {
		return c, errTokenScope
	}
	return c, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, actiontoken.ErrInvalid), errors.Is(err, actiontoken.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, passports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadBody),
		errors.Is(err, passports.ErrInvalidRequest),
		errors.Is(err, transitions.ErrUnknownStatus),
		errors.Is(err, transitions.ErrMissingMetadata):
		return http.StatusBadRequest
	case errors.Is(err, errTokenScope),
		errors.Is(err, transitions.ErrRoleNotAllowed),
		errors.Is(err, transitions.ErrPartnerCodeRequired),
		errors.Is(err, transitions.ErrPartnerCodeInvalid):
		return http.StatusForbidden
	case errors.Is(err, transitions.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, passports.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", msg)
		msg = "internal error"
	}
	writeJSON(w, code, contract.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
