package submission

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/intake/assessment"
	"github.com/tmsclinic/intake/internal/intake/form"
	"github.com/tmsclinic/intake/internal/intake/queue"
	"github.com/tmsclinic/intake/internal/intake/session"
	"github.com/tmsclinic/intake/internal/intake/validation"
	"github.com/tmsclinic/intake/internal/platform/connectivity"
	"github.com/tmsclinic/intake/internal/platform/notification"
)

// SessionResolver is the slice of the session manager the orchestrator
// needs.
type SessionResolver interface {
	Resolve(ctx context.Context, deviceKey string) (*session.Session, error)
	StartFresh(ctx context.Context, deviceKey string) (*session.Session, error)
	Convert(ctx context.Context, deviceKey string, p *session.Patient) (*session.Session, error)
}

// SummarySender is the email channel.
type SummarySender interface {
	SendSummary(ctx context.Context, s notification.Summary) error
}

// Service is the per-form submission orchestrator.
type Service struct {
	repo     Repository
	sessions SessionResolver
	queue    *queue.Queue
	mailer   SummarySender
	checker  connectivity.Checker
	log      zerolog.Logger

	wg sync.WaitGroup
}

// NewService wires the orchestrator.
func NewService(repo Repository, sessions SessionResolver, q *queue.Queue, mailer SummarySender, checker connectivity.Checker, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		queue:    q,
		mailer:   mailer,
		checker:  checker,
		log:      log.With().Str("component", "submission").Logger(),
	}
}

// Wait blocks until every in-flight background dispatch has settled.
// Called during graceful shutdown and by tests.
func (s *Service) Wait() { s.wg.Wait() }

func newSubmissionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Submit runs the synchronous half of the workflow and hands the rest to a
// background dispatch. The receipt is the service-side analog of the
// client's optimistic success signal: by the time it is returned the
// submission is validated and session-bound, but the email and database
// channels have not yet settled.
//
// Order is strict: validation, then the reachability pre-flight, then
// session resolution, then scoring. A validation or pre-flight failure
// aborts with no side effects — an offline submission is blocked, not
// queued.
func (s *Service) Submit(ctx context.Context, deviceKey string, formType form.Type, fields form.Fields) (*Receipt, error) {
	vr := validation.ValidateForm(formType, fields)
	if !vr.Valid {
		return &Receipt{Status: StatusInvalid, Errors: vr.Errors, FirstInvalid: vr.First}, nil
	}

	if !s.checker.Online(ctx) {
		s.log.Warn().Str("form", string(formType)).Msg("pre-flight failed, submission blocked")
		return &Receipt{Status: StatusOffline}, nil
	}

	sess, err := s.resolveSession(ctx, deviceKey)
	if err != nil {
		return nil, err
	}

	// The row is inserted before the email channel settles, so it starts
	// partial; UpdateChannelState promotes it once both channels report.
	rec := &Record{
		SubmissionID: newSubmissionID(),
		FormType:     formType,
		SessionID:    *sess.RemoteRecordID,
		Payload:      fields,
		Outcome:      OutcomePartial,
	}
	if scale := assessment.ForForm(formType); scale != nil {
		total := assessment.TotalScore(fields.Responses("responses"), *scale)
		severity := assessment.Severity(total, *scale)
		rec.TotalScore = &total
		rec.Severity = &severity
	}

	receipt := &Receipt{
		Status:       StatusAccepted,
		SubmissionID: rec.SubmissionID,
		TotalScore:   rec.TotalScore,
		Severity:     rec.Severity,
	}

	dispatchCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(dispatchCtx, deviceKey, rec)
	}()

	return receipt, nil
}

// resolveSession applies the self-healing policy: a typed session error
// triggers one fresh-session fallback; anything else, or a fallback
// failure, propagates.
func (s *Service) resolveSession(ctx context.Context, deviceKey string) (*session.Session, error) {
	sess, err := s.sessions.Resolve(ctx, deviceKey)
	if err == nil {
		return sess, nil
	}
	var serr *session.Error
	if !errors.As(err, &serr) {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	s.log.Warn().Err(err).Msg("session resolution failed, starting fresh")
	sess, err = s.sessions.StartFresh(ctx, deviceKey)
	if err != nil {
		return nil, fmt.Errorf("start fresh session: %w", err)
	}
	return sess, nil
}

// dispatch races the email and database channels, combines their
// outcomes, and queues whatever could not be stored. The two sends have
// no ordering between them; the result is assembled only after both
// settle.
func (s *Service) dispatch(ctx context.Context, deviceKey string, rec *Record) Result {
	var emailErr, storeErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		emailErr = s.mailer.SendSummary(ctx, notification.Summary{
			SubmissionID: rec.SubmissionID,
			FormType:     rec.FormType,
			Fields:       rec.Payload,
			TotalScore:   rec.TotalScore,
			Severity:     rec.Severity,
		})
	}()
	go func() {
		defer wg.Done()
		_, storeErr = s.repo.Insert(ctx, rec)
	}()
	wg.Wait()

	res := Result{
		EmailSent: emailErr == nil,
		Stored:    storeErr == nil,
	}
	res.Success = res.EmailSent && res.Stored

	switch {
	case res.Success:
		if err := s.repo.UpdateChannelState(ctx, rec.SubmissionID, true, OutcomeDelivered); err != nil {
			s.log.Error().Err(err).Str("submission_id", rec.SubmissionID).Msg("failed to record outcome")
		}
		s.log.Info().Str("submission_id", rec.SubmissionID).Str("form", string(rec.FormType)).Msg("submission delivered")
	case res.Stored:
		// Data is safe in the database; the missing email is recorded
		// on the row, not retried.
		s.log.Error().Err(emailErr).Str("submission_id", rec.SubmissionID).Msg("summary email failed")
		if err := s.repo.UpdateChannelState(ctx, rec.SubmissionID, false, OutcomePartial); err != nil {
			s.log.Error().Err(err).Str("submission_id", rec.SubmissionID).Msg("failed to record outcome")
		}
	default:
		// The database write failed. Queue for redelivery whether or
		// not the email made it; the flag stops a replay from sending
		// the summary twice.
		if res.EmailSent {
			s.log.Error().Err(storeErr).Str("submission_id", rec.SubmissionID).Msg("store failed, clinic has email copy")
		} else {
			s.log.Error().Err(storeErr).AnErr("email_error", emailErr).Str("submission_id", rec.SubmissionID).Msg("both channels failed")
		}
		if _, err := s.queue.Enqueue(ctx, queue.Pending{
			SubmissionID: rec.SubmissionID,
			DeviceKey:    deviceKey,
			FormType:     rec.FormType,
			Payload:      rec.Payload,
			EmailSent:    res.EmailSent,
		}); err != nil {
			s.log.Error().Err(err).Str("submission_id", rec.SubmissionID).Msg("failed to queue submission")
		}
	}

	if res.Stored && rec.FormType == form.TypePatientDemographics {
		s.convert(ctx, deviceKey, rec.Payload)
	}
	return res
}

// convert links the session to a registered patient once the demographic
// sheet is stored. Runs in the background; failures are logged, the
// submission itself already succeeded.
func (s *Service) convert(ctx context.Context, deviceKey string, fields form.Fields) {
	_, err := s.sessions.Convert(ctx, deviceKey, &session.Patient{
		FirstName:   fields.String("firstName"),
		LastName:    fields.String("lastName"),
		Email:       fields.String("email"),
		Phone:       fields.String("phone"),
		DateOfBirth: fields.String("dateOfBirth"),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("patient conversion failed")
	}
}

// Redeliver replays one queued submission: the record is inserted under
// its original submission id (a no-op when a prior attempt already got it
// in), the summary email is sent unless the original attempt managed to,
// and the stored row's channel state is refreshed. Any channel failure
// returns an error so the entry stays queued.
func (s *Service) Redeliver(ctx context.Context, p queue.Pending) error {
	sess, err := s.resolveSession(ctx, p.DeviceKey)
	if err != nil {
		return err
	}

	rec := &Record{
		SubmissionID: p.SubmissionID,
		FormType:     p.FormType,
		SessionID:    *sess.RemoteRecordID,
		Payload:      p.Payload,
		EmailSent:    p.EmailSent,
	}
	if scale := assessment.ForForm(p.FormType); scale != nil {
		total := assessment.TotalScore(p.Payload.Responses("responses"), *scale)
		severity := assessment.Severity(total, *scale)
		rec.TotalScore = &total
		rec.Severity = &severity
	}

	emailSent := p.EmailSent
	if !emailSent {
		if err := s.mailer.SendSummary(ctx, notification.Summary{
			SubmissionID: rec.SubmissionID,
			FormType:     rec.FormType,
			Fields:       rec.Payload,
			TotalScore:   rec.TotalScore,
			Severity:     rec.Severity,
		}); err != nil {
			return fmt.Errorf("redeliver email: %w", err)
		}
		emailSent = true
	}

	rec.EmailSent = emailSent
	rec.Outcome = OutcomeDelivered
	if _, err := s.repo.Insert(ctx, rec); err != nil {
		return fmt.Errorf("redeliver store: %w", err)
	}
	if err := s.repo.UpdateChannelState(ctx, rec.SubmissionID, emailSent, OutcomeDelivered); err != nil {
		return fmt.Errorf("redeliver outcome: %w", err)
	}

	if rec.FormType == form.TypePatientDemographics {
		s.convert(ctx, p.DeviceKey, p.Payload)
	}
	return nil
}

// Get returns one submission by its id.
func (s *Service) Get(ctx context.Context, submissionID string) (*Record, error) {
	return s.repo.GetBySubmissionID(ctx, submissionID)
}

// List returns submissions, optionally filtered by form type.
func (s *Service) List(ctx context.Context, formType *form.Type, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, formType, limit, offset)
}
