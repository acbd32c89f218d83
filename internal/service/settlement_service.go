package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
	"github.com/aethernaut-labs/marketd/internal/notify"
)

// claimLockTTL bounds how long a claim lock can be held if the holder dies.
const claimLockTTL = 10 * time.Second

// reportPageSize is the page size used when collecting a resolved market's
// positions for its settlement report.
const reportPageSize = 500

// SettlementService drives markets from closed to resolved and pays out
// winning positions. Resolution is exactly-once per market; claims are
// exactly-once per position.
type SettlementService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	cache     domain.MarketCache
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	archiver  domain.Archiver
	notifier  *notify.Notifier
	logger    *slog.Logger

	now func() time.Time
}

// NewSettlementService creates a SettlementService with all required
// dependencies. archiver and notifier may be nil when object storage or
// notification channels are not configured.
func NewSettlementService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	archiver domain.Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		markets:   markets,
		positions: positions,
		cache:     cache,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		archiver:  archiver,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepDue closes every market whose deadline has passed, up to limit. One
// market failing does not stop the sweep; the first error is returned after
// all markets were attempted.
func (s *SettlementService) SweepDue(ctx context.Context, limit int) (int, error) {
	now := s.now()

	due, err := s.markets.ListDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: list due: %w", err)
	}

	var closed int
	var firstErr error
	for _, m := range due {
		if m.Status != domain.MarketStatusOpen {
			// Already closed, waiting on its authority to resolve.
			continue
		}
		if err := s.markets.MarkClosed(ctx, m.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "settlement_service: close failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			if s.notifier != nil {
				_ = s.notifier.SweepFailure(ctx, m.ID, err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("settlement_service: close %q: %w", m.ID, err)
			}
			continue
		}
		if cacheErr := s.cache.Invalidate(ctx, m.ID); cacheErr != nil {
			s.logger.WarnContext(ctx, "settlement_service: cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", cacheErr.Error()),
			)
		}
		closed++
	}

	if closed > 0 {
		s.logger.InfoContext(ctx, "settlement_service: sweep closed markets",
			slog.Int("closed", closed),
			slog.Int("due", len(due)),
		)
	}

	return closed, firstErr
}

// Resolve declares the winning outcome of a market. Only the market's
// authority may resolve, the deadline must have passed, and exactly one
// caller wins any race; everyone else observes ErrAlreadyResolved. On
// success the settlement report is archived and subscribers are notified.
func (s *SettlementService) Resolve(ctx context.Context, marketID string, outcome domain.Outcome, authority string) (domain.SettlementReport, error) {
	now := s.now()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("settlement_service: get market %q: %w", marketID, err)
	}

	if engine.CloseIfDue(&m, now) {
		if closeErr := s.markets.MarkClosed(ctx, marketID, now); closeErr != nil {
			return domain.SettlementReport{}, fmt.Errorf("settlement_service: close %q: %w", marketID, closeErr)
		}
	}

	// Validate authority and status against the snapshot before touching the
	// store, so a wrong authority never even reaches the guarded update.
	if err := engine.Resolve(&m, outcome, authority, now); err != nil {
		return domain.SettlementReport{}, fmt.Errorf("settlement_service: resolve %q: %w", marketID, err)
	}

	resolved, err := s.markets.MarkResolved(ctx, marketID, outcome, now)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("settlement_service: mark resolved %q: %w", marketID, err)
	}

	if cacheErr := s.cache.Invalidate(ctx, marketID); cacheErr != nil {
		s.logger.WarnContext(ctx, "settlement_service: cache invalidate failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}

	report, err := s.buildReport(ctx, resolved, now)
	if err != nil {
		// The market is resolved regardless; the report can be rebuilt later.
		s.logger.ErrorContext(ctx, "settlement_service: report build failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		report = engine.BuildReport(resolved, nil, now)
	}

	if s.archiver != nil {
		if path, archErr := s.archiver.ArchiveSettlement(ctx, report); archErr != nil {
			s.logger.ErrorContext(ctx, "settlement_service: archive failed",
				slog.String("market_id", marketID),
				slog.String("error", archErr.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "settlement_service: settlement archived",
				slog.String("market_id", marketID),
				slog.String("path", path),
			)
		}
	}

	if s.notifier != nil {
		if notifyErr := s.notifier.MarketResolved(ctx, report); notifyErr != nil {
			s.logger.WarnContext(ctx, "settlement_service: resolve notification failed",
				slog.String("market_id", marketID),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	s.publishResolution(ctx, resolved, report)

	if err := s.audit.Log(ctx, "market.resolve", map[string]any{
		"market_id": marketID,
		"outcome":   string(outcome),
		"authority": authority,
		"fee_taken": report.FeeTaken,
		"anomalous": report.Anomalous,
	}); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settlement_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Uint64("total_pool", report.TotalPool),
		slog.Uint64("fee_taken", report.FeeTaken),
	)

	return report, nil
}

// Claim pays out one position of a resolved market. Claims are idempotent:
// the first call flips the claimed flag and returns the entitlement, every
// later call fails with ErrAlreadyClaimed. A losing position claims
// successfully with a zero payout.
func (s *SettlementService) Claim(ctx context.Context, positionID, claimant string) (engine.Entitlement, error) {
	unlock, err := s.locks.Acquire(ctx, "claim:"+positionID, claimLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return engine.Entitlement{}, fmt.Errorf("settlement_service: claim %q in flight: %w", positionID, domain.ErrLockHeld)
		}
		return engine.Entitlement{}, fmt.Errorf("settlement_service: acquire claim lock %q: %w", positionID, err)
	}
	defer unlock()

	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: get position %q: %w", positionID, err)
	}
	if pos.Bettor != claimant {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: claimant %q does not own position %q: %w",
			claimant, positionID, domain.ErrUnauthorized)
	}

	m, err := s.markets.GetByID(ctx, pos.MarketID)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: get market %q: %w", pos.MarketID, err)
	}

	now := s.now()
	ent, err := engine.Entitle(m, pos, now)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: entitle position %q: %w", positionID, err)
	}

	ok, err := s.positions.Claim(ctx, positionID, ent.NetPayout, now)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: claim position %q: %w", positionID, err)
	}
	if !ok {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: position %q: %w", positionID, domain.ErrAlreadyClaimed)
	}

	s.publishClaim(ctx, m, pos, ent, now)

	if err := s.audit.Log(ctx, "position.claim", map[string]any{
		"market_id":   m.ID,
		"position_id": positionID,
		"bettor":      claimant,
		"won":         ent.Won,
		"net_payout":  ent.NetPayout,
		"fee":         ent.Fee,
	}); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settlement_service: position claimed",
		slog.String("market_id", m.ID),
		slog.String("position_id", positionID),
		slog.Bool("won", ent.Won),
		slog.Uint64("net_payout", ent.NetPayout),
	)

	return ent, nil
}

// Entitlement previews what a position would receive without claiming it.
func (s *SettlementService) Entitlement(ctx context.Context, positionID string) (engine.Entitlement, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: get position %q: %w", positionID, err)
	}
	m, err := s.markets.GetByID(ctx, pos.MarketID)
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: get market %q: %w", pos.MarketID, err)
	}
	ent, err := engine.Entitle(m, pos, s.now())
	if err != nil {
		return engine.Entitlement{}, fmt.Errorf("settlement_service: entitle position %q: %w", positionID, err)
	}
	return ent, nil
}

// buildReport pages through every position on the market and assembles the
// settlement report.
func (s *SettlementService) buildReport(ctx context.Context, m domain.Market, now time.Time) (domain.SettlementReport, error) {
	var all []domain.Position
	opts := domain.ListOpts{Limit: reportPageSize}
	for {
		page, err := s.positions.ListByMarket(ctx, m.ID, opts)
		if err != nil {
			return domain.SettlementReport{}, fmt.Errorf("settlement_service: list positions %q: %w", m.ID, err)
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			break
		}
		opts.Offset += reportPageSize
	}
	return engine.BuildReport(m, all, now), nil
}

func (s *SettlementService) publishResolution(ctx context.Context, m domain.Market, report domain.SettlementReport) {
	evt, _ := json.Marshal(map[string]any{
		"event":     "market_resolved",
		"market_id": m.ID,
		"outcome":   string(report.Outcome),
		"yes_pool":  m.YesPool,
		"no_pool":   m.NoPool,
		"fee_taken": report.FeeTaken,
		"anomalous": report.Anomalous,
	})
	if err := s.bus.Publish(ctx, domain.ChannelResolutions, evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish resolution failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) publishClaim(ctx context.Context, m domain.Market, pos domain.Position, ent engine.Entitlement, now time.Time) {
	evt, _ := json.Marshal(map[string]any{
		"event":       "position_claimed",
		"market_id":   m.ID,
		"position_id": pos.ID,
		"bettor":      pos.Bettor,
		"won":         ent.Won,
		"net_payout":  ent.NetPayout,
		"timestamp":   now.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, domain.ChannelClaims, evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish claim failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
