package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	ErrTxClosed      = errors.New("transaction already committed or rolled back")
	// ErrTransferRejected is returned when the recipient refuses incoming funds of a token.
	ErrTransferRejected = errors.New("recipient rejects transfer")
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

// Ledger tracks fungible balances keyed by (token, account). engine.NativeAsset is the token key of
// the chain's native currency.
//
// Balances only change through a Tx, which stages every movement and applies them together on Commit.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[balanceKey]*big.Int
	rejecting mapset.Set[balanceKey]
}

func New() *Ledger {
	return &Ledger{
		balances:  make(map[balanceKey]*big.Int),
		rejecting: mapset.NewSet[balanceKey](),
	}
}

// RejectIncoming makes account refuse every incoming movement of token, the way a contract
// without a payable fallback refuses native currency.
func (l *Ledger) RejectIncoming(token, account common.Address) {
	l.rejecting.Add(balanceKey{token, account})
}

// AcceptIncoming undoes RejectIncoming.
func (l *Ledger) AcceptIncoming(token, account common.Address) {
	l.rejecting.Remove(balanceKey{token, account})
}

// BalanceOf returns a copy of the committed balance.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(token, account)
}

// BalancesOf returns copies of account's committed balances of tokens, read as one snapshot.
func (l *Ledger) BalancesOf(account common.Address, tokens ...common.Address) []*big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		out[i] = l.balanceLocked(token, account)
	}
	return out
}

func (l *Ledger) balanceLocked(token, account common.Address) *big.Int {
	if b, ok := l.balances[balanceKey{token, account}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount directly to account. It is meant for seeding balances.
func (l *Ledger) Mint(token, account common.Address, amount *big.Int) error {
	tx := l.Begin()
	if err := tx.Mint(token, account, amount); err != nil {
		return err
	}
	return tx.Commit()
}

// Begin opens a transaction against the ledger. Nothing it stages is visible outside the Tx
// until Commit succeeds.
func (l *Ledger) Begin() *Tx {
	return &Tx{
		ledger: l,
		deltas: make(map[balanceKey]*big.Int),
	}
}

// Tx is a staged set of balance movements plus hooks that run once the movements are applied.
// A Tx is not safe for concurrent use.
type Tx struct {
	ledger *Ledger
	deltas map[balanceKey]*big.Int
	order  []balanceKey
	hooks  []func()
	closed bool
}

// BalanceOf returns the committed balance with this transaction's staged movements applied.
func (tx *Tx) BalanceOf(token, account common.Address) *big.Int {
	b := tx.ledger.BalanceOf(token, account)
	if d, ok := tx.deltas[balanceKey{token, account}]; ok {
		b.Add(b, d)
	}
	return b
}

// Transfer moves amount of token from one account to another.
func (tx *Tx) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := tx.receivable(token, to); err != nil {
		return err
	}
	if err := tx.debit(token, from, amount); err != nil {
		return err
	}
	tx.credit(token, to, amount)
	return nil
}

// Mint credits amount of token to account out of thin air.
func (tx *Tx) Mint(token, to common.Address, amount *big.Int) error {
	if err := tx.check(amount); err != nil {
		return err
	}
	if err := tx.receivable(token, to); err != nil {
		return err
	}
	tx.credit(token, to, amount)
	return nil
}

// OnCommit registers fn to run after the staged movements are applied. Hooks run in registration
// order while the ledger is locked, so they must not call back into the Ledger.
func (tx *Tx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

// Commit applies every staged movement at once. If any resulting balance would be negative the
// ledger is left untouched and no hook runs.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	l := tx.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[balanceKey]*big.Int, len(tx.order))
	for _, k := range tx.order {
		b := l.balanceLocked(k.token, k.account)
		b.Add(b, tx.deltas[k])
		if b.Sign() < 0 {
			return fmt.Errorf("%w: %s of token %s", engine.ErrInsufficientBalance, k.account, k.token)
		}
		next[k] = b
	}
	for k, b := range next {
		l.balances[k] = b
	}
	for _, fn := range tx.hooks {
		fn()
	}
	return nil
}

// Rollback discards the transaction. It is safe to call after Commit.
func (tx *Tx) Rollback() {
	tx.closed = true
	tx.deltas = nil
	tx.order = nil
	tx.hooks = nil
}

func (tx *Tx) check(amount *big.Int) error {
	if tx.closed {
		return ErrTxClosed
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (tx *Tx) receivable(token, to common.Address) error {
	if tx.ledger.rejecting.Contains(balanceKey{token, to}) {
		return fmt.Errorf("%w: %s refuses token %s", ErrTransferRejected, to, token)
	}
	return nil
}

func (tx *Tx) debit(token, from common.Address, amount *big.Int) error {
	if err := tx.check(amount); err != nil {
		return err
	}
	if have := tx.BalanceOf(token, from); have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of token %s, needs %s", engine.ErrInsufficientBalance, from, have, token, amount)
	}
	d := tx.delta(balanceKey{token, from})
	d.Sub(d, amount)
	return nil
}

func (tx *Tx) credit(token, to common.Address, amount *big.Int) {
	d := tx.delta(balanceKey{token, to})
	d.Add(d, amount)
}

func (tx *Tx) delta(k balanceKey) *big.Int {
	d, ok := tx.deltas[k]
	if !ok {
		d = new(big.Int)
		tx.deltas[k] = d
		tx.order = append(tx.order, k)
	}
	return d
}
