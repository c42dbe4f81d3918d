package memkv

import (
	"context"
	"encoding/binary"

	"github.com/reusee/stacktester/kv"
)

type tenant struct {
	store *Store
	name  []byte
}

var _ kv.Tenant = tenant{}

func (t tenant) Name() []byte {
	return t.name
}

func (t tenant) CreateTransaction() (kv.Transaction, error) {
	return newTransaction(t.store, t.name), nil
}

// OpenTenant does not check existence; transactions of a missing tenant fail on use.
func (s *Store) OpenTenant(name []byte) (kv.Tenant, error) {
	return tenant{
		store: s,
		name:  name,
	}, nil
}

// must hold s.mu
func (s *Store) tenantPrefix(name []byte) ([]byte, error) {
	id, ok := s.latest(tenantMapPrefix + string(name))
	if !ok {
		return nil, kv.Error{Code: kv.CodeTenantNotFound}
	}
	return id, nil
}

func (s *Store) CreateTenant(ctx context.Context, name []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantMapPrefix + string(name)
	if _, ok := s.latest(key); ok {
		return kv.Error{Code: kv.CodeTenantAlreadyExists}
	}

	var maxID uint64
	for k := range keysIn(s.data, tenantMapPrefix, tenantMapPrefix+"\xff", false) {
		if id, ok := s.latest(k); ok {
			maxID = max(maxID, binary.BigEndian.Uint64(id))
		}
	}
	prefix := binary.BigEndian.AppendUint64(nil, maxID+1)

	_, err := s.install([]Change{
		{Key: []byte(key), Value: prefix},
	}, []keyRange{
		{begin: key, end: key + "\x00"},
	})
	return err
}

func (s *Store) DeleteTenant(ctx context.Context, name []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix, err := s.tenantPrefix(name)
	if err != nil {
		return err
	}
	begin, end := string(prefix), string(strinc(prefix))
	for k := range keysIn(s.data, begin, end, false) {
		if _, ok := s.latest(k); ok {
			return kv.Error{Code: kv.CodeTenantNotEmpty}
		}
	}

	key := tenantMapPrefix + string(name)
	_, err = s.install([]Change{
		{Key: []byte(key), Deleted: true},
	}, []keyRange{
		{begin: key, end: key + "\x00"},
	})
	return err
}

// strinc returns the first key after every key with the prefix; prefix must not be all 0xff
func strinc(prefix []byte) []byte {
	ret := append([]byte{}, prefix...)
	for len(ret) > 0 && ret[len(ret)-1] == 0xff {
		ret = ret[:len(ret)-1]
	}
	if len(ret) > 0 {
		ret[len(ret)-1]++
	}
	return ret
}
