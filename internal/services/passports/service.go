// Package passports applies status transitions on the server: it loads the
// passport, resolves the effective role, asks the transition authority and
// persists the result.
package passports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/BearBump/PassportDesk/internal/cache"
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/scan"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
	"github.com/BearBump/PassportDesk/internal/storage/pgpassport"
	"github.com/pkg/errors"
)

var (
	ErrNotFound       = errors.New("passport not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrRateLimited    = errors.New("too many transitions, try again later")
)

const (
	defaultMaxBulk = 1000

	duplicateInRequest = "Duplicate passport id in request"
	genericFailure     = "Transition failed"
)

type Repository interface {
	GetPassport(ctx context.Context, id string) (*models.Passport, error)
	GetPartnerCode(ctx context.Context, code string) (*models.PartnerCode, error)
	ApplyTransition(ctx context.Context, in pgpassport.TransitionInput) (*models.Passport, *models.TransitionRecord, error)
	ListTransitions(ctx context.Context, passportID string, limit, offset int) ([]*models.TransitionRecord, error)
}

type Publisher interface {
	PublishTransitioned(ctx context.Context, msg messages.PassportTransitioned) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Options struct {
	CurrentTTL           time.Duration
	TransitionsPerMinute int64
	MaxBulk              int
	Now                  func() time.Time
}

type Service struct {
	repo      Repository
	cache     cache.BytesCache
	publisher Publisher
	limiter   RateLimiter
	authority *transitions.Authority
	opts      Options
	logger    *slog.Logger
}

// New wires the service. cache, publisher and limiter may be nil.
func New(repo Repository, c cache.BytesCache, publisher Publisher, limiter RateLimiter, opts Options) *Service {
	if opts.MaxBulk <= 0 {
		opts.MaxBulk = defaultMaxBulk
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repo,
		cache:     c,
		publisher: publisher,
		limiter:   limiter,
		authority: transitions.NewAuthority(nil),
		opts:      opts,
		logger:    slog.Default().With("component", "passports"),
	}
}

type ActionInfo struct {
	Passport           *models.Passport
	Actor              models.Actor
	AllowedTransitions []models.Status
	MetadataFields     map[models.Status][]transitions.MetadataField
}

type TransitionRequest struct {
	To          models.Status
	Metadata    map[string]string
	PartnerCode string
}

type BulkRequest struct {
	PassportIDs []string
	To          models.Status
	Metadata    map[string]string
}

// ActionInfo is what the action page renders: the passport, who is acting and
// the transitions that actor may attempt from the current status.
func (s *Service) ActionInfo(ctx context.Context, id string, actor models.Actor) (*ActionInfo, error) {
	p, err := s.GetPassport(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := s.authority.AllowedFor(p.Status, actor.Role)
	return &ActionInfo{
		Passport:           p,
		Actor:              actor,
		AllowedTransitions: allowed,
		MetadataFields:     transitions.FieldsFor(allowed),
	}, nil
}

// GetPassport reads through the status cache.
func (s *Service) GetPassport(ctx context.Context, id string) (*models.Passport, error) {
	id, ok := scan.Normalize(id)
	if !ok {
		return nil, ErrNotFound
	}

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, currentKey(id))
		if err == nil && ok {
			var p models.Passport
			if json.Unmarshal(b, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePassport(ctx, p)
	return p, nil
}

// Transition applies one gamified transition and returns the points awarded.
func (s *Service) Transition(ctx context.Context, id string, actor models.Actor, req TransitionRequest) (*models.Passport, int32, error) {
	if err := s.allow(ctx, actor); err != nil {
		return nil, 0, err
	}
	p, rec, err := s.apply(ctx, id, actor, req.To, req.Metadata, req.PartnerCode, true)
	if err != nil {
		return nil, 0, err
	}
	return p, rec.PointsAwarded, nil
}

// BulkTransition applies one target status to many passports. Every unit is
// its own transaction; the result lists every requested id in request order.
func (s *Service) BulkTransition(ctx context.Context, actor models.Actor, req BulkRequest) (models.BulkResult, error) {
	if !req.To.Valid() {
		return models.BulkResult{}, errors.Wrapf(ErrInvalidRequest, "unknown to_status %q", req.To)
	}
	if len(req.PassportIDs) == 0 {
		return models.BulkResult{}, errors.Wrap(ErrInvalidRequest, "passport_ids is empty")
	}
	if len(req.PassportIDs) > s.opts.MaxBulk {
		return models.BulkResult{}, errors.Wrapf(ErrInvalidRequest, "too many passport_ids (max %d)", s.opts.MaxBulk)
	}

	res := models.BulkResult{Results: make([]models.UnitResult, 0, len(req.PassportIDs))}
	seen := make(map[string]struct{}, len(req.PassportIDs))
	for _, raw := range req.PassportIDs {
		ur := models.UnitResult{PassportID: raw}
		id, ok := scan.Normalize(raw)
		if ok {
			ur.PassportID = id
		}

		if _, dup := seen[ur.PassportID]; dup {
			ur.Error = duplicateInRequest
		} else {
			seen[ur.PassportID] = struct{}{}
			if _, _, err := s.apply(ctx, ur.PassportID, actor, req.To, req.Metadata, "", false); err != nil {
				ur.Error = s.unitMessage(err)
			} else {
				ur.Success = true
			}
		}

		if ur.Success {
			res.SuccessCount++
		} else {
			res.FailedCount++
		}
		res.Results = append(res.Results, ur)
	}

	s.logger.Info("bulk transition",
		"actor", actor.Email, "to_status", string(req.To),
		"success", res.SuccessCount, "failed", res.FailedCount)
	return res, nil
}

func (s *Service) History(ctx context.Context, id string, limit, offset int) ([]*models.TransitionRecord, error) {
	id, ok := scan.Normalize(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.repo.ListTransitions(ctx, id, limit, offset)
}

// ApplyTransitioned refreshes the status cache from a passport.transitioned
// event.
func (s *Service) ApplyTransitioned(ctx context.Context, msg messages.PassportTransitioned) error {
	id, ok := scan.Normalize(msg.PassportID)
	if !ok {
		return errors.New("passport_id is required")
	}
	if !s.cacheEnabled() {
		return nil
	}

	p, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// паспорт удалён: сообщение не должно блокировать партицию
		_ = s.cache.Del(ctx, currentKey(id))
		return nil
	}
	if err != nil {
		return err
	}
	s.cachePassport(ctx, p)
	return nil
}

func (s *Service) apply(ctx context.Context, rawID string, actor models.Actor, to models.Status, metadata map[string]string, partnerCode string, gamified bool) (*models.Passport, *models.TransitionRecord, error) {
	id, ok := scan.Normalize(rawID)
	if !ok {
		return nil, nil, ErrNotFound
	}
	if !to.Valid() {
		return nil, nil, errors.Wrapf(transitions.ErrUnknownStatus, "%q", to)
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	role, code, err := s.effectiveRole(ctx, actor, partnerCode)
	if err != nil {
		return nil, nil, err
	}

	md := transitions.Clean(to, metadata)
	if err := s.authority.Authorize(role, p.Status, to, md); err != nil {
		return nil, nil, err
	}

	var points int32
	if gamified {
		points = transitions.Points(to)
	}

	upd, rec, err := s.repo.ApplyTransition(ctx, pgpassport.TransitionInput{
		PassportID:    id,
		From:          p.Status,
		To:            to,
		ActorEmail:    actor.Email,
		ActorRole:     role,
		Metadata:      md,
		PartnerCode:   code,
		PointsAwarded: points,
	})
	switch {
	case errors.Is(err, pgpassport.ErrStatusConflict):
		return nil, nil, errors.Wrapf(transitions.ErrIllegalTransition, "%s changed concurrently", id)
	case errors.Is(err, pgpassport.ErrPartnerCodeUnavailable):
		return nil, nil, transitions.ErrPartnerCodeInvalid
	case err != nil:
		return nil, nil, err
	}

	s.cachePassport(ctx, upd)
	s.publish(ctx, upd, rec, !gamified)
	return upd, rec, nil
}

// effectiveRole returns the actor's role, or for an unverified actor the role
// granted by a usable partner code together with the code to redeem.
func (s *Service) effectiveRole(ctx context.Context, actor models.Actor, partnerCode string) (models.Role, *string, error) {
	if actor.Role != models.RoleUnverified {
		return actor.Role, nil, nil
	}
	code := strings.TrimSpace(partnerCode)
	if code == "" {
		return "", nil, transitions.ErrPartnerCodeRequired
	}

	pc, err := s.repo.GetPartnerCode(ctx, code)
	if errors.Is(err, pgpassport.ErrPartnerCodeUnavailable) {
		return "", nil, transitions.ErrPartnerCodeInvalid
	}
	if err != nil {
		return "", nil, err
	}
	if !pc.ExpiresAt.After(s.opts.Now()) || pc.Uses >= pc.MaxUses || pc.Role == models.RoleUnverified {
		return "", nil, transitions.ErrPartnerCodeInvalid
	}
	return pc.Role, &code, nil
}

func (s *Service) allow(ctx context.Context, actor models.Actor) error {
	if s.limiter == nil || s.opts.TransitionsPerMinute <= 0 {
		return nil
	}
	key := "ratelimit:transition:" + strings.ToLower(actor.Email)
	ok, n, err := s.limiter.Allow(ctx, key, s.opts.TransitionsPerMinute, time.Minute)
	if err != nil {
		// лимитер best effort: redis недоступен - не блокируем переходы
		s.logger.Warn("rate limiter unavailable", "error", err.Error())
		return nil
	}
	if !ok {
		return errors.Wrapf(ErrRateLimited, "%d requests in the last minute", n)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Passport, error) {
	p, err := s.repo.GetPassport(ctx, id)
	if errors.Is(err, pgpassport.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, p *models.Passport, rec *models.TransitionRecord, bulk bool) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishTransitioned(ctx, messages.PassportTransitioned{
		PassportID:    p.ID,
		SerialNumber:  p.SerialNumber,
		FromStatus:    string(rec.FromStatus),
		ToStatus:      string(rec.ToStatus),
		ActorEmail:    rec.ActorEmail,
		ActorRole:     string(rec.ActorRole),
		Metadata:      rec.Metadata,
		PointsAwarded: rec.PointsAwarded,
		Bulk:          bulk,
		OccurredAt:    rec.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("publish passport.transitioned", "passport_id", p.ID, "error", err.Error())
	}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.opts.CurrentTTL > 0
}

func (s *Service) cachePassport(ctx context.Context, p *models.Passport) {
	if !s.cacheEnabled() {
		return
	}
	b, _ := json.Marshal(p)
	_ = s.cache.Set(ctx, currentKey(p.ID), b, s.opts.CurrentTTL)
}

// unitMessage is the per-unit error shown to the operator. Domain errors are
// shown as is; infrastructure errors are logged and reported generically.
func (s *Service) unitMessage(err error) string {
	for _, known := range []error{
		ErrNotFound,
		transitions.ErrUnknownStatus,
		transitions.ErrIllegalTransition,
		transitions.ErrRoleNotAllowed,
		transitions.ErrPartnerCodeRequired,
		transitions.ErrPartnerCodeInvalid,
		transitions.ErrMissingMetadata,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	s.logger.Error("bulk unit failed", "error", err.Error())
	return genericFailure
}

func currentKey(id string) string {
	return fmt.Sprintf("passport:%s:current", id)
}
