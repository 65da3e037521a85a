package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calloway-health/consultline/internal/cache"
	"github.com/calloway-health/consultline/internal/models"
	pgrepo "github.com/calloway-health/consultline/internal/repositories/postgres"
	"github.com/calloway-health/consultline/internal/utils"
)

// RecentCallWindow is how far back a call still counts as "recent" for the
// HTTP boundary's duplicate-start check. Advisory only: orchestrator resume
// keys on the call identifier, not on this window.
const RecentCallWindow = 5 * time.Minute

// RecentCall is the recent_call lookup result. Found distinguishes "a call
// exists but is older than the window" from a summary of the recent one.
type RecentCall struct {
	Found     bool      `json:"found"`
	CallID    uint      `json:"call_id,omitempty"`
	CallStart time.Time `json:"call_start,omitempty"`
}

type CallService interface {
	Start(ctx context.Context, phone string) (*models.Call, error)
	Recent(ctx context.Context, phone string) (*RecentCall, error)
	Responses(ctx context.Context, callID uint) ([]models.Response, error)
}

type callService struct {
	patients  pgrepo.PatientRepository
	calls     pgrepo.CallRepository
	responses pgrepo.ResponseRepository
	cache     cache.Cache
	now       func() time.Time
}

func NewCallService(patients pgrepo.PatientRepository, calls pgrepo.CallRepository, responses pgrepo.ResponseRepository, c cache.Cache) CallService {
	return &callService{patients: patients, calls: calls, responses: responses, cache: c, now: time.Now}
}

// NewCallServiceWithClock is the test constructor.
func NewCallServiceWithClock(patients pgrepo.PatientRepository, calls pgrepo.CallRepository, responses pgrepo.ResponseRepository, c cache.Cache, now func() time.Time) CallService {
	return &callService{patients: patients, calls: calls, responses: responses, cache: c, now: now}
}

func (s *callService) Start(ctx context.Context, phone string) (*models.Call, error) {
	const op = "CallService.Start"

	if !utils.ValidPhone(phone) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phone_number must be 10-15 digits", nil)
	}

	patient, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "patient not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up patient", err)
	}

	call := &models.Call{
		PatientID: &patient.ID,
		CallStart: s.now().UTC(),
	}
	if err := s.calls.Insert(ctx, call); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert call", err)
	}

	// the cached latest-call entry is now stale
	if s.cache != nil {
		_ = s.cache.Del(ctx, latestCallKey(patient.ID))
	}
	return call, nil
}

func (s *callService) Recent(ctx context.Context, phone string) (*RecentCall, error) {
	const op = "CallService.Recent"

	if !utils.ValidPhone(phone) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phone_number must be 10-15 digits", nil)
	}

	patient, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "patient not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up patient", err)
	}

	latest, err := s.latestCall(ctx, patient.ID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no calls found for patient", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up calls", err)
	}

	if s.now().UTC().Sub(latest.CallStart) > RecentCallWindow {
		return &RecentCall{Found: false}, nil
	}
	return &RecentCall{Found: true, CallID: latest.ID, CallStart: latest.CallStart}, nil
}

// Responses lists the question/answer rows recorded for a call, oldest first.
func (s *callService) Responses(ctx context.Context, callID uint) ([]models.Response, error) {
	const op = "CallService.Responses"

	if _, err := s.calls.GetByID(ctx, callID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "call not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up call", err)
	}

	rows, err := s.responses.ListByCall(ctx, callID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list responses", err)
	}
	return rows, nil
}

func (s *callService) latestCall(ctx context.Context, patientID uint) (*models.Call, error) {
	key := latestCallKey(patientID)

	if s.cache != nil {
		var cached models.Call
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	latest, err := s.calls.LatestByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, latest, 30*time.Second)
	}
	return latest, nil
}

func latestCallKey(patientID uint) string {
	return fmt.Sprintf("calls:latest:%d", patientID)
}
