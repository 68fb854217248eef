package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	supa "github.com/supabase-community/supabase-go"
)

const subscriptionsTable = "subscriptions"

// Subscription is the slice of a user's plan the pipelines consult: which
// plan they are on and how many renders they have left.
type Subscription struct {
	UserID       uuid.UUID `json:"user_id"`
	PlanName     string    `json:"plan_name"`
	HookCredits  int       `json:"hook_credits"`
	MergeCredits int       `json:"merge_credits"`
}

// IsFreePlan reports whether the user is on the free tier. Free-tier renders
// get the watermark.
func (s *Subscription) IsFreePlan() bool {
	return strings.EqualFold(s.PlanName, "free")
}

// CanGenerateHooks reports whether at least one hook credit remains.
func (s *Subscription) CanGenerateHooks() bool {
	return s.HookCredits >= 1
}

// CanMerge reports whether at least one merge credit remains.
func (s *Subscription) CanMerge() bool {
	return s.MergeCredits >= 1
}

// Service reads and debits subscriptions.
type Service struct {
	client *supa.Client
	log    *logrus.Logger
}

// NewService creates a subscription service on the shared Supabase client.
func NewService(client *supa.Client, log *logrus.Logger) *Service {
	return &Service{client: client, log: log}
}

// Get fetches a user's subscription.
func (s *Service) Get(userID uuid.UUID) (*Subscription, error) {
	var results []Subscription
	_, err := s.client.From(subscriptionsTable).
		Select("*", "", false).
		Eq("user_id", userID.String()).
		ExecuteTo(&results)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription for %s: %w", userID, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no subscription for user %s", userID)
	}
	return &results[0], nil
}

// DebitHooks deducts n hook credits, flooring the balance at zero.
func (s *Service) DebitHooks(userID uuid.UUID, n int) error {
	sub, err := s.Get(userID)
	if err != nil {
		return err
	}
	balance := sub.HookCredits - n
	if balance < 0 {
		balance = 0
	}
	if err := s.update(userID, map[string]interface{}{"hook_credits": balance}); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"user":    userID,
		"used":    n,
		"balance": balance,
	}).Info("Debited hook credits")
	return nil
}

// DebitMergeCredits deducts n merge credits, flooring the balance at zero.
func (s *Service) DebitMergeCredits(userID uuid.UUID, n int) error {
	sub, err := s.Get(userID)
	if err != nil {
		return err
	}
	balance := sub.MergeCredits - n
	if balance < 0 {
		balance = 0
	}
	if err := s.update(userID, map[string]interface{}{"merge_credits": balance}); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"user":    userID,
		"used":    n,
		"balance": balance,
	}).Info("Debited merge credits")
	return nil
}

func (s *Service) update(userID uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	_, _, err := s.client.From(subscriptionsTable).
		Update(fields, "", "").
		Eq("user_id", userID.String()).
		Execute()
	if err != nil {
		return fmt.Errorf("updating subscription for %s: %w", userID, err)
	}
	return nil
}
