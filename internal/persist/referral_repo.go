package persist

import (
	"context"
	"time"
)

// ReferralRow links a referred resident to the referrer's code.
type ReferralRow struct {
	Code       string     `db:"code"`
	ReferrerID string     `db:"referrer_id"`
	ReferredID string     `db:"referred_id"`
	MaturedAt  *time.Time `db:"matured_at"`
	Claimed    bool       `db:"claimed"`
	CreatedAt  time.Time  `db:"created_at"`
}

// GitHubClaimRow records a one-time GitHub star bonus claim.
type GitHubClaimRow struct {
	ID         int64     `db:"id"`
	ResidentID string    `db:"resident_id"`
	Login      string    `db:"login"`
	ClaimedAt  time.Time `db:"claimed_at"`
}

type ReferralRepo struct {
	db *DB
}

func NewReferralRepo(db *DB) *ReferralRepo { return &ReferralRepo{db: db} }

// ReferrerByCode resolves a referral code to its owner.
func (r *ReferralRepo) ReferrerByCode(ctx context.Context, code string) (string, error) {
	var ids []string
	if err := r.db.Conn.SelectContext(ctx, &ids,
		`SELECT id FROM residents WHERE referral_code = ? LIMIT 1`, code); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	return ids[0], nil
}

// Record links a newly registered resident to the referrer. The UNIQUE
// constraint on referred_id makes this idempotent per referred resident.
func (r *ReferralRepo) Record(ctx context.Context, code, referrerID, referredID string) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO referrals (code, referrer_id, referred_id)
		 VALUES (?, ?, ?)`, code, referrerID, referredID)
	return err
}

// Mature marks a referral as payable once the referred resident has
// survived long enough.
func (r *ReferralRepo) Mature(ctx context.Context, referredID string) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`UPDATE referrals SET matured_at = ? WHERE referred_id = ? AND matured_at IS NULL`,
		time.Now().UTC(), referredID)
	return err
}

// ClaimMatured marks all matured, unclaimed referrals for a referrer as
// claimed and returns how many were paid out.
func (r *ReferralRepo) ClaimMatured(ctx context.Context, referrerID string) (int, error) {
	res, err := r.db.Conn.ExecContext(ctx,
		`UPDATE referrals SET claimed = 1
		 WHERE referrer_id = ? AND claimed = 0 AND matured_at IS NOT NULL`, referrerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Stats returns total and matured-unclaimed referral counts for a referrer.
func (r *ReferralRepo) Stats(ctx context.Context, referrerID string) (total, claimable int, err error) {
	row := struct {
		Total     int `db:"total"`
		Claimable int `db:"claimable"`
	}{}
	err = r.db.Conn.GetContext(ctx, &row,
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN claimed = 0 AND matured_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS claimable
		 FROM referrals WHERE referrer_id = ?`, referrerID)
	return row.Total, row.Claimable, err
}

// RecordGitHubClaim stores a star-bonus claim; each GitHub login pays once.
func (r *ReferralRepo) RecordGitHubClaim(ctx context.Context, residentID, login string) (bool, error) {
	res, err := r.db.Conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO github_claims (resident_id, login) VALUES (?, ?)`,
		residentID, login)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
