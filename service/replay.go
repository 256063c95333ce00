package service

import (
	"fmt"
	"strconv"
	"strings"

	"tycho/domain/book"
	"tycho/infra/wal"
)

// Replay rebuilds in-memory state from the entry WAL. It MUST run
// before the service accepts traffic. Trades re-emitted during replay
// stay in the in-memory log but skip the outbox, feed and archive;
// they were handed to those sinks before the restart.
func (s *OrderService) Replay(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaying = true
	defer func() { s.replaying = false }()

	lastSeq, err := wal.Replay(dir, func(rec *wal.Record) error {
		return s.apply(rec)
	})
	if err != nil {
		return fmt.Errorf("service: wal replay: %w", err)
	}

	// Resume sequencing AFTER replay.
	s.seq.Resume(lastSeq)
	// Replay re-creates every trade ever executed, so numbering new
	// trades after that count keeps outbox keys from being reused.
	s.tradeSeq.Resume(uint64(s.trades.Len()))

	s.log.Info("wal replay completed", "last_seq", lastSeq, "resting", s.engine.PoolInUse())
	return nil
}

func (s *OrderService) apply(rec *wal.Record) error {
	parts := strings.Split(string(rec.Data), "|")

	switch rec.Type {
	case wal.RecordPlace:
		if len(parts) != 5 {
			return fmt.Errorf("invalid place payload: %q", rec.Data)
		}
		clientID, side, err := parseClientSide(parts[0], parts[1])
		if err != nil {
			return err
		}
		priceIdx, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			return err
		}
		qty, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return err
		}
		tif, err := strconv.Atoi(parts[4])
		if err != nil {
			return err
		}
		// Rejections replay as rejections; only WAL corruption is an error.
		_, _ = s.engine.PlaceLimit(clientID, side, int32(priceIdx), qty, s.clock.Now(), book.TimeInForce(tif))
		return nil

	case wal.RecordMarket:
		if len(parts) != 3 {
			return fmt.Errorf("invalid market payload: %q", rec.Data)
		}
		clientID, side, err := parseClientSide(parts[0], parts[1])
		if err != nil {
			return err
		}
		qty, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return err
		}
		_, _ = s.engine.PlaceMarket(clientID, side, qty, s.clock.Now())
		return nil

	case wal.RecordCancel:
		if len(parts) != 1 {
			return fmt.Errorf("invalid cancel payload: %q", rec.Data)
		}
		clientID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return err
		}
		_ = s.engine.Cancel(clientID)
		return nil

	case wal.RecordReplace:
		if len(parts) != 3 {
			return fmt.Errorf("invalid replace payload: %q", rec.Data)
		}
		clientID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return err
		}
		priceIdx, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return err
		}
		qty, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return err
		}
		_ = s.engine.Replace(clientID, int32(priceIdx), qty, s.clock.Now())
		return nil

	default:
		return fmt.Errorf("unknown record type %d", rec.Type)
	}
}

func parseClientSide(c, sd string) (uint64, book.Side, error) {
	clientID, err := strconv.ParseUint(c, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	side, err := strconv.Atoi(sd)
	if err != nil {
		return 0, 0, err
	}
	return clientID, book.Side(side), nil
}
