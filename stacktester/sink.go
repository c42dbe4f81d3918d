package stacktester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/reusee/stacktester/kv"
	"github.com/samber/lo"
)

// Record is one logged stack entry.
type Record struct {
	Key   []byte `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// RecordSink receives the output of LOG_STACK.
type RecordSink interface {
	WriteRecords(ctx context.Context, records []Record) error
}

// StoreSink writes records into the database, one transaction per batch.
type StoreSink struct {
	DB         kv.Transactor
	BatchSize  int
	MaxRetries int
}

var _ RecordSink = new(StoreSink)

func (s *StoreSink) WriteRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	size := s.BatchSize
	if size <= 0 {
		size = DefaultLogBatchSize
	}
	for _, batch := range lo.Chunk(records, size) {
		if _, err := kv.Transact(ctx, s.DB, func(tr kv.Transaction) (struct{}, error) {
			for _, record := range batch {
				if err := tr.Set(record.Key, record.Value); err != nil {
					return struct{}{}, err
				}
			}
			return struct{}{}, nil
		}, kv.MaxRetries(s.MaxRetries)); err != nil {
			return err
		}
	}
	return nil
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("stacktester: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CBORSink appends records to a stream as a sequence of CBOR items.
type CBORSink struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
}

var _ RecordSink = new(CBORSink)

func NewCBORSink(w io.Writer) *CBORSink {
	return &CBORSink{
		encoder: cborEncMode.NewEncoder(w),
	}
}

func (c *CBORSink) WriteRecords(ctx context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

// ReadCBORRecords decodes a stream written by CBORSink.
func ReadCBORRecords(r io.Reader) (ret []Record, err error) {
	decoder := cbor.NewDecoder(r)
	for {
		var record Record
		if err := decoder.Decode(&record); errors.Is(err, io.EOF) {
			return ret, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		ret = append(ret, record)
	}
}

// MultiSink writes every record to each sink in order.
type MultiSink []RecordSink

var _ RecordSink = MultiSink{}

func (m MultiSink) WriteRecords(ctx context.Context, records []Record) error {
	for _, sink := range m {
		if err := sink.WriteRecords(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
