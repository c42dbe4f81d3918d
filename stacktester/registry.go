package stacktester

import (
	"fmt"

	"github.com/reusee/stacktester/kv"
)

type transactionState struct {
	tr       kv.Transaction
	tenant   kv.Tenant
	disposed bool
}

func (t *transactionState) dispose() {
	if t.disposed {
		return
	}
	t.disposed = true
	t.tr.Close()
}

// Registry maps transaction names to live transactions.
type Registry struct {
	db           kv.Database
	transactions map[string]*transactionState
	current      string
	hasCurrent   bool
	tenant       kv.Tenant
}

func NewRegistry(db kv.Database) *Registry {
	return &Registry{
		db:           db,
		transactions: make(map[string]*transactionState),
	}
}

func (r *Registry) create() (*transactionState, error) {
	var transactor kv.Transactor = r.db
	if r.tenant != nil {
		transactor = r.tenant
	}
	tr, err := transactor.CreateTransaction()
	if err != nil {
		return nil, err
	}
	return &transactionState{
		tr:     tr,
		tenant: r.tenant,
	}, nil
}

// NewTransaction replaces the transaction under the current name, disposing the old one first.
func (r *Registry) NewTransaction() error {
	if !r.hasCurrent {
		return ErrNoTransaction
	}
	if old, ok := r.transactions[r.current]; ok {
		old.dispose()
		delete(r.transactions, r.current)
	}
	state, err := r.create()
	if err != nil {
		return err
	}
	r.transactions[r.current] = state
	return nil
}

// UseTransaction moves the cursor to name, creating its transaction if needed.
func (r *Registry) UseTransaction(name string) error {
	r.current = name
	r.hasCurrent = true
	if _, ok := r.transactions[name]; ok {
		return nil
	}
	state, err := r.create()
	if err != nil {
		return err
	}
	r.transactions[name] = state
	return nil
}

func (r *Registry) Current() (kv.Transaction, error) {
	if !r.hasCurrent {
		return nil, ErrNoTransaction
	}
	state, ok := r.transactions[r.current]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTransaction, r.current)
	}
	if state.disposed {
		return nil, fmt.Errorf("%w: %q", ErrTransactionDisposed, r.current)
	}
	return state.tr, nil
}

func (r *Registry) CurrentName() string {
	return r.current
}

// SetTenant binds transactions created later to tenant; nil selects the database.
func (r *Registry) SetTenant(tenant kv.Tenant) {
	r.tenant = tenant
}

func (r *Registry) Tenant() kv.Tenant {
	return r.tenant
}

// Close disposes every transaction and resets the cursor.
func (r *Registry) Close() {
	for _, state := range r.transactions {
		state.dispose()
	}
	clear(r.transactions)
	r.current = ""
	r.hasCurrent = false
	r.tenant = nil
}
