package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"registration-service/internal/mailer"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the slice of the store the completion workflow needs. The order
// and attendee tables are only ever mutated through these calls.
type Ledger interface {
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	MarkOrderCompleted(ctx context.Context, orderID string) (bool, error)
	LinkOrderAttendee(ctx context.Context, orderID string, attendeeID int64, credentialIssued bool) error
	MarkOrderNotified(ctx context.Context, orderID string) error

	GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error)
	UpsertAttendee(ctx context.Context, a *models.Attendee) error
	AddEntitlements(ctx context.Context, attendeeID int64, events []string) error
	GetEntitlements(ctx context.Context, attendeeID int64) ([]string, error)
	SetAttendeeCredential(ctx context.Context, attendeeID int64, image []byte) error
	MarkAttendeeNotified(ctx context.Context, attendeeID int64) error

	GetTeamComposition(ctx context.Context, orderID int64, eventName string) (*models.TeamComposition, error)
	CreateTeamComposition(ctx context.Context, tc *models.TeamComposition) error
}

// CredentialIssuer renders scannable credentials.
type CredentialIssuer interface {
	Issue(subjectKey, orderID string) ([]byte, error)
	VerificationURL(orderID string) string
}

// Notifier delivers outbound messages; failures come back as result values.
type Notifier interface {
	SendRegistrationConfirmation(to string, data mailer.ConfirmationData) mailer.Result
}

// RegistrationEventPublisher publishes the RegistrationCompleted event.
type RegistrationEventPublisher interface {
	PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error
}

// RegistrationService materializes a paid order into attendee records,
// entitlements, team compositions, a credential and a confirmation message.
// Every entry point that believes an order is paid funnels into Complete.
type RegistrationService struct {
	ledger   Ledger
	issuer   CredentialIssuer
	notifier Notifier
	events   RegistrationEventPublisher
	logger   *zap.Logger
}

func NewRegistrationService(
	ledger Ledger,
	issuer CredentialIssuer,
	notifier Notifier,
	events RegistrationEventPublisher,
) *RegistrationService {
	return &RegistrationService{
		ledger:   ledger,
		issuer:   issuer,
		notifier: notifier,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// CompletionResult reports what Complete did.
type CompletionResult struct {
	AlreadyProcessed bool
	Order            *models.Order
	Attendee         *models.Attendee
}

// Complete runs the payment-completion workflow for an order believed paid.
//
// The conditional ledger transition is the only concurrency gate: of any
// number of concurrent or repeated calls, exactly one wins it and runs the
// side effects. Everything after the gate tolerates being re-run against
// already-converged data (upserts, set unions, existence checks), and a
// notification failure never rolls back the completed registration.
func (s *RegistrationService) Complete(ctx context.Context, orderID string) (*CompletionResult, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.Complete")
	defer span.End()

	order, err := s.ledger.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCompleted {
		util.OrdersAlreadyProcessedTotal.Inc()
		s.logger.Info("Order already processed", zap.String("order_id", orderID))
		return s.alreadyProcessed(ctx, order), nil
	}

	transitioned, err := s.ledger.MarkOrderCompleted(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order completed: %w", err)
	}
	if !transitioned {
		// A concurrent trigger won the compare-and-set between our read and
		// this write.
		util.OrdersAlreadyProcessedTotal.Inc()
		s.logger.Info("Lost completion race, short-circuiting", zap.String("order_id", orderID))
		order, err = s.ledger.GetOrderByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return s.alreadyProcessed(ctx, order), nil
	}

	util.OrdersCompletedTotal.Inc()
	order.Status = models.OrderStatusCompleted
	s.logger.Info("Order completed", zap.String("order_id", orderID))

	eventNames := entitlementNames(order.Items)

	attendee, err := s.resolveBuyer(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve buyer identity: %w", err)
	}

	if err := s.ledger.AddEntitlements(ctx, attendee.ID, eventNames); err != nil {
		s.logger.Error("Failed to add entitlements",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	if ents, err := s.ledger.GetEntitlements(ctx, attendee.ID); err == nil {
		attendee.Entitlements = ents
	}

	s.issueCredential(ctx, attendee, orderID)

	if err := s.ledger.LinkOrderAttendee(ctx, orderID, attendee.ID, attendee.HasCredential()); err != nil {
		s.logger.Error("Failed to link order to attendee",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	s.materializeTeams(ctx, order, attendee)

	notified := s.notify(ctx, order, attendee)

	if s.events != nil {
		event := &models.RegistrationCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRegistrationCompleted,
				Timestamp: time.Now(),
			},
			OrderID:          orderID,
			AttendeeID:       attendee.ID,
			Email:            attendee.Email,
			Entitlements:     attendee.Entitlements,
			NotificationSent: notified,
		}
		if err := s.events.PublishRegistrationCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish RegistrationCompleted event", zap.Error(err))
		}
	}

	return &CompletionResult{Order: order, Attendee: attendee}, nil
}

func (s *RegistrationService) alreadyProcessed(ctx context.Context, order *models.Order) *CompletionResult {
	res := &CompletionResult{AlreadyProcessed: true, Order: order}
	if order.AttendeeID.Valid {
		if attendee, err := s.ledger.GetAttendeeByID(ctx, order.AttendeeID.Int64); err == nil {
			res.Attendee = attendee
		}
	}
	return res
}

// resolveBuyer finds the buyer identity by durable reference first, then by
// email, and finally constructs it. The upsert merges order profile data
// into whatever exists: incoming fields fill gaps, never blank stored values.
func (s *RegistrationService) resolveBuyer(ctx context.Context, order *models.Order) (*models.Attendee, error) {
	email := order.BuyerEmail

	if order.AttendeeID.Valid {
		if existing, err := s.ledger.GetAttendeeByID(ctx, order.AttendeeID.Int64); err == nil {
			email = existing.Email
		}
	}

	attendee := &models.Attendee{
		Email:            email,
		Name:             order.BuyerName,
		ContactNo:        order.BuyerPhone,
		Gender:           order.BuyerGender,
		Age:              order.BuyerAge,
		UniversityName:   order.UniversityName,
		Address:          order.Address,
		UniversityIDCard: order.UniversityIDCard,
		Validated:        true,
	}
	if err := s.ledger.UpsertAttendee(ctx, attendee); err != nil {
		return nil, err
	}
	return attendee, nil
}

func (s *RegistrationService) issueCredential(ctx context.Context, attendee *models.Attendee, orderID string) {
	if attendee.HasCredential() {
		return
	}

	img, err := s.issuer.Issue(attendee.Email, orderID)
	if err != nil {
		s.logger.Error("Credential issuance failed",
			zap.String("email", attendee.Email),
			zap.Error(err))
		return
	}

	if err := s.ledger.SetAttendeeCredential(ctx, attendee.ID, img); err != nil {
		s.logger.Error("Failed to persist credential",
			zap.Int64("attendee_id", attendee.ID),
			zap.Error(err))
		return
	}

	attendee.CredentialImage = img
	util.CredentialsIssuedTotal.Inc()
}

// materializeTeams creates one composition per (order, event) roster group.
// Member attendees are created unvalidated and get the event unioned into
// their entitlements. An existing composition for the pair means a previous
// run already converged, so the group is skipped.
func (s *RegistrationService) materializeTeams(ctx context.Context, order *models.Order, leader *models.Attendee) {
	for key, roster := range order.TeamRoster {
		if len(roster) == 0 {
			continue
		}
		eventName := rosterEventName(key, order.Items)

		existing, err := s.ledger.GetTeamComposition(ctx, order.ID, eventName)
		if err != nil {
			s.logger.Error("Failed to check team composition",
				zap.String("order_id", order.OrderID),
				zap.String("event", eventName),
				zap.Error(err))
			continue
		}
		if existing != nil {
			s.logger.Info("Team composition already exists, skipping",
				zap.String("order_id", order.OrderID),
				zap.String("event", eventName))
			continue
		}

		members := make([]models.TeamMember, 0, len(roster))
		for _, m := range roster {
			if m.Email == "" {
				continue
			}
			member := &models.Attendee{
				Email:     m.Email,
				Name:      m.Name,
				ContactNo: m.Phone,
			}
			if err := s.ledger.UpsertAttendee(ctx, member); err != nil {
				s.logger.Error("Failed to upsert team member",
					zap.String("email", m.Email),
					zap.Error(err))
				continue
			}
			if err := s.ledger.AddEntitlements(ctx, member.ID, []string{eventName}); err != nil {
				s.logger.Error("Failed to add member entitlement",
					zap.String("email", m.Email),
					zap.Error(err))
			}
			members = append(members, models.TeamMember{
				AttendeeID: member.ID,
				Name:       m.Name,
				Email:      m.Email,
				Role:       "member",
			})
		}

		tc := &models.TeamComposition{
			OrderID:      order.ID,
			EventName:    eventName,
			TeamName:     fmt.Sprintf("%s's Team", leader.Name),
			LeaderID:     leader.ID,
			TotalMembers: len(members) + 1,
			Members:      members,
		}
		if err := s.ledger.CreateTeamComposition(ctx, tc); err != nil {
			// A racing run may have inserted between check and create; the
			// unique constraint keeps the pair singular either way.
			s.logger.Error("Failed to create team composition",
				zap.String("order_id", order.OrderID),
				zap.String("event", eventName),
				zap.Error(err))
			continue
		}
		util.TeamCompositionsCreatedTotal.Inc()
		s.logger.Info("Team composition created",
			zap.String("order_id", order.OrderID),
			zap.String("event", eventName),
			zap.Int("total_members", tc.TotalMembers))
	}
}

// notify dispatches the confirmation and stamps both records on success.
// Failures are logged only; notification sits outside the atomicity boundary.
func (s *RegistrationService) notify(ctx context.Context, order *models.Order, attendee *models.Attendee) bool {
	res := s.notifier.SendRegistrationConfirmation(attendee.Email, mailer.ConfirmationData{
		Name:         attendee.Name,
		OrderID:      order.OrderID,
		Entitlements: attendee.Entitlements,
		Credential:   attendee.CredentialImage,
		TicketURL:    s.issuer.VerificationURL(order.OrderID),
	})
	if !res.OK {
		util.NotificationsFailedTotal.Inc()
		s.logger.Error("Confirmation dispatch failed",
			zap.String("order_id", order.OrderID),
			zap.String("email", attendee.Email),
			zap.Error(res.Err))
		return false
	}

	util.NotificationsSentTotal.Inc()
	if err := s.ledger.MarkOrderNotified(ctx, order.OrderID); err != nil {
		s.logger.Error("Failed to stamp order notification", zap.Error(err))
	}
	if err := s.ledger.MarkAttendeeNotified(ctx, attendee.ID); err != nil {
		s.logger.Error("Failed to stamp attendee notification", zap.Error(err))
	}
	order.NotificationSent = true
	attendee.NotificationSent = true
	return true
}

// entitlementNames derives the entitlements granted by an order's line
// items. Placeholder entries never grant anything; an empty result falls
// back to the generic registration.
func entitlementNames(items []models.OrderItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" || name == models.DemoPaymentItem || name == models.DemoEventItem {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return []string{models.GeneralRegistration}
	}
	return names
}

// rosterEventName maps a roster key back to the canonical purchased item
// name. Keys may be the item name itself, a slugged variant, or a catalog
// id; an unmatched key is used verbatim.
func rosterEventName(key string, items []models.OrderItem) string {
	unslugged := strings.ReplaceAll(key, "-", " ")
	for _, item := range items {
		if item.Name == key ||
			strings.EqualFold(item.Name, unslugged) ||
			fmt.Sprintf("%d", item.CatalogID) == key {
			return item.Name
		}
	}
	return key
}
