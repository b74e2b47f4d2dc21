package position

import "sync"

// Account is the local balance ledger. Banked partials credit it the moment
// a level fills; the broker's own number is only consulted at startup
// reconciliation.
type Account struct {
	mu      sync.Mutex
	initial float64
	balance float64
}

func NewAccount(initial float64) *Account {
	return &Account{initial: initial, balance: initial}
}

func (a *Account) Initial() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initial
}

func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Credit adds (or, negative, removes) realized profit.
func (a *Account) Credit(amount float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
	return a.balance
}

// SetBalance overwrites the balance from persisted or reconciled state.
func (a *Account) SetBalance(balance float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = balance
}
