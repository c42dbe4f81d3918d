package stacktester

import (
	"context"
)

func (m *Machine) opTenantCreate(ctx context.Context, index int) error {
	name, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	err = m.db.CreateTenant(ctx, name)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	m.stack.Push(NewPendingItem(index, readyPending{err: err}))
	return nil
}

func (m *Machine) opTenantDelete(ctx context.Context, index int) error {
	name, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	err = m.db.DeleteTenant(ctx, name)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	m.stack.Push(NewPendingItem(index, readyPending{err: err}))
	return nil
}

// opTenantSetActive binds transactions created later to the named tenant.
// A missing tenant is reported when those transactions are used.
func (m *Machine) opTenantSetActive(ctx context.Context) error {
	name, err := m.popBytes(ctx)
	if err != nil {
		return err
	}
	tenant, err := m.db.OpenTenant(name)
	if err != nil {
		return err
	}
	m.registry.SetTenant(tenant)
	return nil
}
