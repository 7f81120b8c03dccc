package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/recordvault/backend/internal/config"
	"github.com/recordvault/backend/internal/events"
	"github.com/recordvault/backend/internal/models"
)

// ReferralService pays a referrer once when their referee qualifies.
type ReferralService struct {
	db           *sql.DB
	authority    *BalanceAuthority
	publisher    events.Publisher
	defaultBonus int64
}

func NewReferralService(db *sql.DB, authority *BalanceAuthority, cfg config.ReferralConfig, publisher events.Publisher) *ReferralService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ReferralService{
		db:           db,
		authority:    authority,
		publisher:    publisher,
		defaultBonus: cfg.BonusTokens,
	}
}

// CreateLink registers that refereeID was referred by referrerID. A zero
// bonus uses the configured default.
func (s *ReferralService) CreateLink(ctx context.Context, referrerID, refereeID string, bonus int64) (*models.ReferralLink, error) {
	if referrerID == refereeID {
		return nil, ErrSelfReferral
	}
	if bonus == 0 {
		bonus = s.defaultBonus
	}
	if bonus <= 0 {
		return nil, ErrInvalidAmount
	}

	link := &models.ReferralLink{
		ID:          uuid.NewString(),
		ReferrerID:  referrerID,
		RefereeID:   refereeID,
		Status:      models.ReferralPending,
		BonusAmount: bonus,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO referral_links (id, referrer_id, referee_id, status, bonus_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		link.ID, link.ReferrerID, link.RefereeID, link.Status, link.BonusAmount,
	).Scan(&link.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return nil, ErrReferralExists
	case isForeignKeyViolation(err):
		return nil, ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("create referral link: %w", err)
	}

	log.WithFields(log.Fields{
		"referral_link_id": link.ID,
		"referrer_id":      referrerID,
		"referee_id":       refereeID,
	}).Info("[REFERRAL] Link created")
	return link, nil
}

// OnRefereeQualified completes a pending link and credits the referrer's
// bonus in one transaction. It reports whether this call paid the bonus.
func (s *ReferralService) OnRefereeQualified(ctx context.Context, referralLinkID string) (bool, error) {
	if _, err := uuid.Parse(referralLinkID); err != nil {
		return false, ErrReferralNotFound
	}

	var (
		credit *Mutation
		link   models.ReferralLink
	)
	err := s.authority.RunInTx(ctx, func(tx *sql.Tx) error {
		credit = nil
		link = models.ReferralLink{}

		now := time.Now()
		err := tx.QueryRowContext(ctx, `
			UPDATE referral_links
			SET status = $1, completed_at = $2
			WHERE id = $3 AND status = $4
			RETURNING referrer_id, referee_id, bonus_amount`,
			models.ReferralCompleted, now, referralLinkID, models.ReferralPending,
		).Scan(&link.ReferrerID, &link.RefereeID, &link.BonusAmount)
		if errors.Is(err, sql.ErrNoRows) {
			return s.ensureLinkExists(ctx, tx, referralLinkID)
		}
		if err != nil {
			return fmt.Errorf("complete referral link: %w", err)
		}
		link.ID = referralLinkID
		link.Status = models.ReferralCompleted
		link.CompletedAt = &now

		credit, err = s.authority.CreditTx(ctx, tx, MutationRequest{
			AccountID:      link.ReferrerID,
			Amount:         link.BonusAmount,
			Kind:           models.KindReferralBonus,
			IdempotencyKey: referralLinkID,
			Reference:      referralLinkID,
			Description:    "Referral bonus",
		})
		return err
	})
	if err != nil {
		return false, err
	}

	if credit == nil || !credit.Applied {
		log.WithField("referral_link_id", referralLinkID).Info("[REFERRAL] Link already completed")
		return false, nil
	}

	s.authority.AfterCommit(credit)
	events.Emit(s.publisher, events.SubjectReferralCompleted, link)
	log.WithFields(log.Fields{
		"referral_link_id": referralLinkID,
		"referrer_id":      link.ReferrerID,
		"bonus":            link.BonusAmount,
	}).Info("[REFERRAL] Bonus credited")
	return true, nil
}

func (s *ReferralService) ensureLinkExists(ctx context.Context, tx *sql.Tx, referralLinkID string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM referral_links WHERE id = $1`, referralLinkID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrReferralNotFound
	}
	return err
}
