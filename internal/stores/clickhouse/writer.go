package clickhouse

import (
	"context"
	"errors"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/config"
	"zigfeed/internal/domain"
)

// TradeRow is the flat archive shape of one trade. Decimal columns are sent
// as strings so the driver keeps them exact.
type TradeRow struct {
	TradeTime    time.Time
	TxHash       string
	TradeID      string
	Direction    string
	OfferDenom   string
	AskDenom     string
	OfferAmount  string // Decimal(38,18)
	ReturnAmount string // Decimal(38,18)
	ValueNative  string // Decimal(38,18)
	ValueUSD     string // Decimal(20,6)
	PriceUSD     string // Decimal(20,6)
	Signer       string
	PairContract string
	Class        string
}

// RowFromTrade flattens a mapped trade into its archive row.
func RowFromTrade(t domain.Trade) TradeRow {
	return TradeRow{
		TradeTime:    t.Time,
		TxHash:       t.TxHash,
		TradeID:      t.TradeID,
		Direction:    string(t.Direction),
		OfferDenom:   t.OfferDenom,
		AskDenom:     t.AskDenom,
		OfferAmount:  t.OfferAmount.String(),
		ReturnAmount: t.ReturnAmount.String(),
		ValueNative:  t.ValueNative.String(),
		ValueUSD:     t.ValueUSD.String(),
		PriceUSD:     t.PriceUSD.String(),
		Signer:       t.Signer,
		PairContract: t.PairContract,
		Class:        string(t.Class),
	}
}

type Writer struct {
	log logger.Logger

	conn ch.Conn
	cfg  config.ClickHouseConfig

	inCh      chan TradeRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, conn ch.Conn, cfg config.ClickHouseConfig) *Writer {
	// sane defaults
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 1000
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.Writer.MaxRetries < 0 {
		cfg.Writer.MaxRetries = 0
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      cfg,
		inCh:     make(chan TradeRow, 8192), // ring buffer = expected EPS peak * time_to_level off
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) Enqueue(row TradeRow) error {
	select {
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	}
}

func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]TradeRow, 0, w.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.inCh:
			batch = append(batch, row)
			if len(batch) >= w.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			// drain rows accepted before close, then stop
			for {
				select {
				case row := <-w.inCh:
					batch = append(batch, row)
					if len(batch) >= w.cfg.Writer.BatchMaxRows {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []TradeRow) error {
	if len(rows) == 0 {
		return nil
	}

	// repeat with exponential delay
	backoff := w.cfg.Writer.RetryBackoff

	var lastErr error

	for attempt := 0; attempt <= w.cfg.Writer.MaxRetries; attempt++ {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO trades (
				trade_time,
				tx_hash,
				trade_id,
				direction,
				offer_denom,
				ask_denom,
				offer_amount,
				return_amount,
				value_native,
				value_usd,
				price_usd,
				signer,
				pair_contract,
				class
			)
		`)
		if err != nil {
			lastErr = err
			goto retry
		}

		for i := range rows {
			r := &rows[i]

			if err = batch.Append(
				r.TradeTime,
				r.TxHash,
				r.TradeID,
				r.Direction,
				r.OfferDenom,
				r.AskDenom,
				r.OfferAmount,
				r.ReturnAmount,
				r.ValueNative,
				r.ValueUSD,
				r.PriceUSD,
				r.Signer,
				r.PairContract,
				r.Class,
			); err != nil {
				lastErr = err
				_ = batch.Abort()
				goto retry
			}
		}

		if err = batch.Send(); err != nil {
			lastErr = err
			goto retry
		}
		// success
		return nil

	retry:
		if attempt == w.cfg.Writer.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}
