package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// ErrArchiveExists is returned when the month was already uploaded and
// overwriting was not requested.
var ErrArchiveExists = errors.New("s3blob: archive already exists")

const (
	archivePageSize = 1000
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 16 * 1024 * 1024
	contentTypeJSONL   = "application/x-ndjson"
)

// multipartWriter is implemented by Writer.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Archiver exports one calendar month of trades to
// archive/trades/YYYY-MM.jsonl. Records are not deleted from the store.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	trades domain.TradeHistory
	logger *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. When reader is non-nil, months that are
// already archived are refused with ErrArchiveExists.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, trades domain.TradeHistory, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		trades: trades,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads every trade in the month containing month, oldest
// first, and returns the count. An empty month uploads nothing.
func (a *Archiver) ArchiveTrades(ctx context.Context, month time.Time) (int64, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	path := ArchivePath("trades", start)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive trades: %w", err)
		}
		if exists {
			return 0, fmt.Errorf("%w: %s", ErrArchiveExists, path)
		}
	}

	trades, err := a.collect(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		a.logger.Info("no trades to archive", slog.String("month", start.Format("2006-01")))
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	if mw, ok := a.writer.(multipartWriter); ok && len(buf) > multipartThreshold {
		err = mw.PutMultipart(ctx, path, bytes.NewReader(buf), contentTypeJSONL, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	a.logger.Info("trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
		slog.Int("bytes", len(buf)),
	)
	return int64(len(trades)), nil
}

// collect pages through [start, end) and returns trades oldest first.
func (a *Archiver) collect(ctx context.Context, start, end time.Time) ([]domain.TradeRecord, error) {
	var all []domain.TradeRecord
	for offset := 0; ; offset += archivePageSize {
		page, err := a.trades.ListTrades(ctx, domain.ListOpts{
			Since:  &start,
			Until:  &end,
			Limit:  archivePageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	slices.Reverse(all)
	return all, nil
}

// ArchivePath builds archive/<kind>/YYYY-MM.jsonl.
func ArchivePath(kind string, month time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month.Format("2006-01"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
