package stacktester

import (
	"context"
	"fmt"

	"github.com/reusee/stacktester/tuples"
)

func (m *Machine) opLogStack(ctx context.Context) error {
	prefix, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	records, err := m.stackRecords(ctx, prefix)
	if err != nil {
		return err
	}
	m.stack.Clear()
	m.logger.DebugContext(ctx, "log stack",
		"prefix", prefix,
		"records", len(records),
	)
	return m.sink.WriteRecords(ctx, records)
}

// stackRecords resolves every item bottom to top and renders it as a record keyed by
// (position, origin index) under prefix.
func (m *Machine) stackRecords(ctx context.Context, prefix []byte) ([]Record, error) {
	items := m.stack.Items()
	records := make([]Record, 0, len(items))
	for position, item := range items {
		res, err := item.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		value, err := tuples.Tuple{res.Value}.TryPack()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		if m.valueLimit > 0 && len(value) > m.valueLimit {
			value = value[:m.valueLimit]
		}
		key := append(append([]byte{}, prefix...), tuples.Tuple{
			int64(position),
			int64(res.Index),
		}.Pack()...)
		records = append(records, Record{
			Key:   key,
			Value: value,
		})
	}
	return records, nil
}
