// Package arrowexport serializes closed-trade logs as Arrow IPC streams for
// downstream analysis tooling.
package arrowexport

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"swing-engine/services/engine"
)

// Config holds exporter knobs.
type Config struct {
	BatchSize int
}

// Exporter converts trade records to Arrow and writes IPC streams.
type Exporter struct {
	config Config
	pool   memory.Allocator
	logger *zap.Logger
}

// NewExporter returns an exporter with a Go allocator. A nil logger is
// replaced with a no-op one.
func NewExporter(cfg Config, logger *zap.Logger) *Exporter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{config: cfg, pool: memory.NewGoAllocator(), logger: logger}
}

// tradeSchema is the wire schema of one trade-log row.
var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "ticker", Type: arrow.BinaryTypes.String},
	{Name: "kind", Type: arrow.BinaryTypes.String},
	{Name: "entry_ts", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "exit_ts", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "entry", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "stop_init", Type: arrow.PrimitiveTypes.Float64},
	{Name: "target", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_type", Type: arrow.BinaryTypes.String},
	{Name: "result", Type: arrow.BinaryTypes.String},
	{Name: "r", Type: arrow.PrimitiveTypes.Float64},
	{Name: "return_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "holding_days", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "mae_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "mfe_pct", Type: arrow.PrimitiveTypes.Float64},
	{Name: "rr_at_entry", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteTrades streams the trade log as Arrow IPC record batches of at most
// BatchSize rows each.
func (e *Exporter) WriteTrades(w io.Writer, trades []engine.Trade) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(tradeSchema), ipc.WithAllocator(e.pool))
	defer writer.Close()

	for start := 0; start < len(trades); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(trades) {
			end = len(trades)
		}
		record := e.buildRecord(trades[start:end])
		err := writer.Write(record)
		record.Release()
		if err != nil {
			return fmt.Errorf("write arrow record: %w", err)
		}
	}
	e.logger.Debug("trade log written", zap.Int("trades", len(trades)))
	return nil
}

// WriteFile writes the trade log to path, creating the file.
func (e *Exporter) WriteFile(path string, trades []engine.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := e.WriteTrades(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (e *Exporter) buildRecord(trades []engine.Trade) arrow.Record {
	n := len(trades)
	tickers := make([]string, n)
	kinds := make([]string, n)
	entryTS := make([]uint64, n)
	exitTS := make([]uint64, n)
	entries := make([]float64, n)
	exits := make([]float64, n)
	stops := make([]float64, n)
	targets := make([]float64, n)
	exitTypes := make([]string, n)
	results := make([]string, n)
	rs := make([]float64, n)
	returns := make([]float64, n)
	holds := make([]uint32, n)
	maes := make([]float64, n)
	mfes := make([]float64, n)
	rrs := make([]float64, n)

	for i, t := range trades {
		tickers[i] = t.Ticker
		kinds[i] = string(t.Kind)
		entryTS[i] = uint64(t.EntryDate.Unix())
		exitTS[i] = uint64(t.ExitDate.Unix())
		entries[i] = t.Entry
		exits[i] = t.Exit
		stops[i] = t.StopInit
		targets[i] = t.Target
		exitTypes[i] = string(t.ExitType)
		results[i] = string(t.Result)
		rs[i] = t.R
		returns[i] = t.ReturnPct
		holds[i] = uint32(t.HoldingDays)
		maes[i] = t.MAEPct
		mfes[i] = t.MFEPct
		rrs[i] = t.RRAtEntry
	}

	cols := []arrow.Array{
		e.strColumn(tickers),
		e.strColumn(kinds),
		e.u64Column(entryTS),
		e.u64Column(exitTS),
		e.f64Column(entries),
		e.f64Column(exits),
		e.f64Column(stops),
		e.f64Column(targets),
		e.strColumn(exitTypes),
		e.strColumn(results),
		e.f64Column(rs),
		e.f64Column(returns),
		e.u32Column(holds),
		e.f64Column(maes),
		e.f64Column(mfes),
		e.f64Column(rrs),
	}
	record := array.NewRecord(tradeSchema, cols, int64(n))
	for _, c := range cols {
		c.Release()
	}
	return record
}

func (e *Exporter) strColumn(vals []string) arrow.Array {
	b := array.NewStringBuilder(e.pool)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewStringArray()
}

func (e *Exporter) f64Column(vals []float64) arrow.Array {
	b := array.NewFloat64Builder(e.pool)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewFloat64Array()
}

func (e *Exporter) u64Column(vals []uint64) arrow.Array {
	b := array.NewUint64Builder(e.pool)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewUint64Array()
}

func (e *Exporter) u32Column(vals []uint32) arrow.Array {
	b := array.NewUint32Builder(e.pool)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewUint32Array()
}
