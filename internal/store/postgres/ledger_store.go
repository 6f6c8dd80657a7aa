package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowton/ipbond/internal/domain"
)

// Ledger implements domain.LedgerStore using PostgreSQL. Multi-row Apply
// methods execute inside a single transaction so the engine's atomicity
// contract holds even if the process dies mid-call.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger on the given pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const bondColumns = `id, asset_id, issuer, principal_target, status, total_revenue, matures_at, created_at, closed_at`

func scanBond(row pgx.Row) (domain.Bond, error) {
	var b domain.Bond
	var status string
	err := row.Scan(
		&b.ID, &b.AssetID, &b.Issuer, &b.PrincipalTarget, &status,
		&b.TotalRevenue, &b.MaturesAt, &b.CreatedAt, &b.ClosedAt,
	)
	if err != nil {
		return domain.Bond{}, err
	}
	b.Status = domain.BondStatus(status)
	return b, nil
}

func (s *Ledger) CreateBond(ctx context.Context, bond domain.Bond, tranches []domain.Tranche) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create bond: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertBond = `
		INSERT INTO bonds (id, asset_id, issuer, principal_target, status, total_revenue, matures_at, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(ctx, insertBond,
		bond.ID, bond.AssetID, bond.Issuer, bond.PrincipalTarget, string(bond.Status),
		bond.TotalRevenue, bond.MaturesAt, bond.CreatedAt, bond.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bond %s: %w", bond.ID, err)
	}

	const insertTranche = `
		INSERT INTO tranches (id, bond_id, tier, priority, allocation_cap, apy_bps, total_invested, yield_entitled, accrued_yield, yield_paid, accrual_start, settled_invested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for _, t := range tranches {
		_, err = tx.Exec(ctx, insertTranche,
			t.ID, t.BondID, string(t.Tier), t.Tier.Priority(), t.AllocationCap, t.APYBps,
			t.TotalInvested, t.YieldEntitled, t.AccruedYield, t.YieldPaid, nullableTime(t.AccrualStart), t.SettledInvested,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert tranche %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create bond %s: %w", bond.ID, err)
	}
	return nil
}

func (s *Ledger) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	bond, err := scanBond(s.pool.QueryRow(ctx, `SELECT `+bondColumns+` FROM bonds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, domain.ErrBondNotFound
		}
		return domain.Bond{}, fmt.Errorf("postgres: get bond %s: %w", id, err)
	}
	return bond, nil
}

func (s *Ledger) ListBonds(ctx context.Context, opts domain.ListOpts) ([]domain.Bond, error) {
	query := `SELECT ` + bondColumns + ` FROM bonds ORDER BY created_at LIMIT $1 OFFSET $2`
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bonds: %w", err)
	}
	defer rows.Close()

	var out []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Ledger) ListMaturedCandidates(ctx context.Context, cutoff time.Time) ([]domain.Bond, error) {
	const query = `
		SELECT ` + bondColumns + ` FROM bonds
		WHERE status = 'active' AND matures_at <= $1
		ORDER BY matures_at`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matured candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const trancheColumns = `id, bond_id, tier, allocation_cap, apy_bps, total_invested, yield_entitled, accrued_yield, yield_paid, accrual_start, settled_invested`

func scanTranche(rows pgx.Rows) (domain.Tranche, error) {
	var t domain.Tranche
	var tier string
	var accrualStart *time.Time
	err := rows.Scan(
		&t.ID, &t.BondID, &tier, &t.AllocationCap, &t.APYBps,
		&t.TotalInvested, &t.YieldEntitled, &t.AccruedYield, &t.YieldPaid, &accrualStart, &t.SettledInvested,
	)
	if err != nil {
		return domain.Tranche{}, err
	}
	t.Tier = domain.TrancheTier(tier)
	if accrualStart != nil {
		t.AccrualStart = *accrualStart
	}
	return t, nil
}

func (s *Ledger) TranchesByBond(ctx context.Context, bondID string) ([]domain.Tranche, error) {
	const query = `SELECT ` + trancheColumns + ` FROM tranches WHERE bond_id = $1 ORDER BY priority`
	rows, err := s.pool.Query(ctx, query, bondID)
	if err != nil {
		return nil, fmt.Errorf("postgres: tranches of bond %s: %w", bondID, err)
	}
	defer rows.Close()

	var out []domain.Tranche
	for rows.Next() {
		t, err := scanTranche(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan tranche: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrBondNotFound
	}
	return out, nil
}

const investmentColumns = `id, bond_id, tranche_id, tier, investor, principal, invested_at, redeemed, payout_amount, redeemed_at`

func scanInvestment(row pgx.Row) (domain.Investment, error) {
	var inv domain.Investment
	var tier string
	err := row.Scan(
		&inv.ID, &inv.BondID, &inv.TrancheID, &tier, &inv.Investor,
		&inv.Principal, &inv.InvestedAt, &inv.Redeemed, &inv.PayoutAmount, &inv.RedeemedAt,
	)
	if err != nil {
		return domain.Investment{}, err
	}
	inv.Tier = domain.TrancheTier(tier)
	return inv, nil
}

func (s *Ledger) GetInvestment(ctx context.Context, id string) (domain.Investment, error) {
	inv, err := scanInvestment(s.pool.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Investment{}, domain.ErrInvestmentNotFound
		}
		return domain.Investment{}, fmt.Errorf("postgres: get investment %s: %w", id, err)
	}
	return inv, nil
}

func (s *Ledger) PositionsByInvestor(ctx context.Context, investor string, opts domain.ListOpts) ([]domain.Investment, error) {
	query := `SELECT ` + investmentColumns + ` FROM investments WHERE investor = $1 ORDER BY invested_at LIMIT $2 OFFSET $3`
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.queryInvestments(ctx, query, investor, limit, opts.Offset)
}

func (s *Ledger) InvestmentsByTranche(ctx context.Context, trancheID string) ([]domain.Investment, error) {
	const query = `SELECT ` + investmentColumns + ` FROM investments WHERE tranche_id = $1 ORDER BY invested_at`
	return s.queryInvestments(ctx, query, trancheID)
}

func (s *Ledger) queryInvestments(ctx context.Context, query string, args ...any) ([]domain.Investment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query investments: %w", err)
	}
	defer rows.Close()

	var out []domain.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan investment: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const updateTranche = `
	UPDATE tranches SET
		total_invested = $2, yield_entitled = $3, accrued_yield = $4,
		yield_paid = $5, accrual_start = $6, settled_invested = $7
	WHERE id = $1`

func (s *Ledger) ApplyInvestment(ctx context.Context, tranche domain.Tranche, inv domain.Investment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply investment: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := execTrancheUpdate(ctx, tx, tranche); err != nil {
		return err
	}

	const insert = `
		INSERT INTO investments (id, bond_id, tranche_id, tier, investor, principal, invested_at, redeemed, payout_amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.Exec(ctx, insert,
		inv.ID, inv.BondID, inv.TrancheID, string(inv.Tier), inv.Investor,
		inv.Principal, inv.InvestedAt, inv.Redeemed, inv.PayoutAmount, inv.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert investment %s: %w", inv.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply investment %s: %w", inv.ID, err)
	}
	return nil
}

func (s *Ledger) ApplyDistribution(ctx context.Context, bond domain.Bond, tranches []domain.Tranche, evt domain.DistributionEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply distribution: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE bonds SET total_revenue = $2 WHERE id = $1`, bond.ID, bond.TotalRevenue); err != nil {
		return fmt.Errorf("postgres: update bond revenue %s: %w", bond.ID, err)
	}
	for _, t := range tranches {
		if err := execTrancheUpdate(ctx, tx, t); err != nil {
			return err
		}
	}

	const insert = `
		INSERT INTO distribution_events (id, bond_id, revenue, senior_applied, mezz_applied, junior_applied, excess, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, insert,
		evt.ID, evt.BondID, evt.Revenue, evt.Applied[0], evt.Applied[1], evt.Applied[2], evt.Excess, evt.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert distribution event %s: %w", evt.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply distribution %s: %w", evt.ID, err)
	}
	return nil
}

func (s *Ledger) ApplyTransition(ctx context.Context, bond domain.Bond, tranches []domain.Tranche) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply transition: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE bonds SET status = $2, closed_at = $3 WHERE id = $1`,
		bond.ID, string(bond.Status), bond.ClosedAt,
	); err != nil {
		return fmt.Errorf("postgres: update bond status %s: %w", bond.ID, err)
	}
	for _, t := range tranches {
		if err := execTrancheUpdate(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply transition %s: %w", bond.ID, err)
	}
	return nil
}

func (s *Ledger) ApplyRedemption(ctx context.Context, tranche domain.Tranche, inv domain.Investment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply redemption: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := execTrancheUpdate(ctx, tx, tranche); err != nil {
		return err
	}

	// Guard the redeemed flag at the database level too: the WHERE clause
	// makes a double payout impossible even if the lock layer misbehaves.
	tag, err := tx.Exec(ctx,
		`UPDATE investments SET redeemed = TRUE, payout_amount = $2, redeemed_at = $3 WHERE id = $1 AND redeemed = FALSE`,
		inv.ID, inv.PayoutAmount, inv.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark investment redeemed %s: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRedeemed
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply redemption %s: %w", inv.ID, err)
	}
	return nil
}

func (s *Ledger) ListDistributions(ctx context.Context, bondID string, opts domain.ListOpts) ([]domain.DistributionEvent, error) {
	query := `
		SELECT id, bond_id, revenue, senior_applied, mezz_applied, junior_applied, excess, at
		FROM distribution_events WHERE bond_id = $1 ORDER BY at LIMIT $2 OFFSET $3`
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.queryDistributions(ctx, query, bondID, limit, opts.Offset)
}

func (s *Ledger) ListDistributionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DistributionEvent, error) {
	query := `
		SELECT id, bond_id, revenue, senior_applied, mezz_applied, junior_applied, excess, at
		FROM distribution_events WHERE at < $1 ORDER BY at LIMIT $2`
	if limit <= 0 {
		limit = 1000
	}
	return s.queryDistributions(ctx, query, cutoff, limit)
}

func (s *Ledger) DeleteDistributionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM distribution_events WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete distribution events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Ledger) queryDistributions(ctx context.Context, query string, args ...any) ([]domain.DistributionEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query distribution events: %w", err)
	}
	defer rows.Close()

	var out []domain.DistributionEvent
	for rows.Next() {
		var evt domain.DistributionEvent
		if err := rows.Scan(
			&evt.ID, &evt.BondID, &evt.Revenue,
			&evt.Applied[0], &evt.Applied[1], &evt.Applied[2], &evt.Excess, &evt.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan distribution event: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func execTrancheUpdate(ctx context.Context, tx pgx.Tx, t domain.Tranche) error {
	tag, err := tx.Exec(ctx, updateTranche,
		t.ID, t.TotalInvested, t.YieldEntitled, t.AccruedYield,
		t.YieldPaid, nullableTime(t.AccrualStart), t.SettledInvested,
	)
	if err != nil {
		return fmt.Errorf("postgres: update tranche %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ domain.LedgerStore = (*Ledger)(nil)
