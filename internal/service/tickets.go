package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"registration-service/internal/mailer"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

const otpTTL = 10 * time.Minute

// OTPStore keeps short-lived access codes.
type OTPStore interface {
	StoreOTP(ctx context.Context, email, code string, ttl time.Duration) error
	ConsumeOTP(ctx context.Context, email, code string) (bool, error)
}

// OTPNotifier delivers access codes.
type OTPNotifier interface {
	SendAccessOTP(to string, data mailer.OTPData) mailer.Result
}

// AttendeeLookup resolves attendees by email.
type AttendeeLookup interface {
	GetAttendeeByEmail(ctx context.Context, email string) (*models.Attendee, error)
}

// TicketService grants ticket access to attendees who lost their
// confirmation email: a code goes to the registered address, and a valid
// code unlocks the stored credential.
type TicketService struct {
	attendees AttendeeLookup
	otps      OTPStore
	notifier  OTPNotifier
	logger    *zap.Logger
}

func NewTicketService(attendees AttendeeLookup, otps OTPStore, notifier OTPNotifier) *TicketService {
	return &TicketService{
		attendees: attendees,
		otps:      otps,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// RequestOTP generates, stores and mails an access code for a registered
// email. Unknown emails return ErrAttendeeNotFound so the edge can 404
// without leaking which addresses exist in logs.
func (t *TicketService) RequestOTP(ctx context.Context, email string) error {
	attendee, err := t.attendees.GetAttendeeByEmail(ctx, email)
	if err != nil {
		return err
	}
	if attendee == nil {
		return fmt.Errorf("%w: %s", models.ErrAttendeeNotFound, email)
	}

	code, err := newOTPCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	if err := t.otps.StoreOTP(ctx, email, code, otpTTL); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	res := t.notifier.SendAccessOTP(email, mailer.OTPData{Name: attendee.Name, Code: code})
	if !res.OK {
		util.NotificationsFailedTotal.Inc()
		return fmt.Errorf("failed to deliver code: %w", res.Err)
	}

	util.NotificationsSentTotal.Inc()
	t.logger.Info("Access code sent", zap.String("email", email))
	return nil
}

// VerifyOTP checks a submitted code. A match consumes the code and returns
// the attendee; a mismatch or expired code returns ok == false.
func (t *TicketService) VerifyOTP(ctx context.Context, email, code string) (*models.Attendee, bool, error) {
	ok, err := t.otps.ConsumeOTP(ctx, email, code)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	attendee, err := t.attendees.GetAttendeeByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if attendee == nil {
		return nil, false, fmt.Errorf("%w: %s", models.ErrAttendeeNotFound, email)
	}
	return attendee, true, nil
}

func newOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
