// Package store provides the in-memory finance.TxStore used by tests
// and the dev server.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/familybank/product-engine/finance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds all engine state behind a single mutex. WithTx takes a
// snapshot and restores it on error, so a unit of work is atomic and
// fully serialized against every other operation.
type Memory struct {
	mu sync.Mutex

	users      map[finance.UserID]finance.User
	byNickname map[string]finance.UserID
	products   map[finance.ProductID]finance.FinancialProduct
	apps       map[finance.ApplicationID]finance.Application
	cards      map[string]finance.ApplicationID // every card number ever issued
	transfers  []finance.Transfer

	nextProduct finance.ProductID
	nextApp     finance.ApplicationID
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[finance.UserID]finance.User),
		byNickname:  make(map[string]finance.UserID),
		products:    make(map[finance.ProductID]finance.FinancialProduct),
		apps:        make(map[finance.ApplicationID]finance.Application),
		cards:       make(map[string]finance.ApplicationID),
		nextProduct: 1,
		nextApp:     1,
	}
}

var _ finance.TxStore = (*Memory)(nil)

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id finance.UserID) (finance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id finance.UserID) (finance.User, error) {
	u, ok := m.users[id]
	if !ok {
		return finance.User{}, finance.ErrNotFound
	}
	return u, nil
}

func (m *Memory) FindUserByNickname(_ context.Context, nickname string) (finance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findUserByNicknameLocked(nickname)
}

func (m *Memory) findUserByNicknameLocked(nickname string) (finance.User, error) {
	id, ok := m.byNickname[nickname]
	if !ok {
		return finance.User{}, finance.ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) SaveUser(_ context.Context, u finance.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUserLocked(u)
}

func (m *Memory) saveUserLocked(u finance.User) error {
	if old, ok := m.users[u.ID]; ok && old.Nickname != u.Nickname {
		delete(m.byNickname, old.Nickname)
	}
	m.users[u.ID] = u
	m.byNickname[u.Nickname] = u.ID
	return nil
}

func (m *Memory) AdjustBalance(_ context.Context, id finance.UserID, delta finance.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustBalanceLocked(id, delta)
}

func (m *Memory) adjustBalanceLocked(id finance.UserID, delta finance.Money) error {
	u, ok := m.users[id]
	if !ok {
		return finance.ErrNotFound
	}
	u.Balance = u.Balance.Add(delta)
	m.users[id] = u
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (m *Memory) CreateProduct(_ context.Context, p finance.FinancialProduct) (finance.ProductID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createProductLocked(p)
}

func (m *Memory) createProductLocked(p finance.FinancialProduct) (finance.ProductID, error) {
	p.ID = m.nextProduct
	m.nextProduct++
	m.products[p.ID] = p
	return p.ID, nil
}

func (m *Memory) GetProduct(_ context.Context, id finance.ProductID) (finance.FinancialProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getProductLocked(id)
}

func (m *Memory) getProductLocked(id finance.ProductID) (finance.FinancialProduct, error) {
	p, ok := m.products[id]
	if !ok {
		return finance.FinancialProduct{}, finance.ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListProductsByFamily(_ context.Context, family finance.FamilyID) ([]finance.FinancialProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listProductsByFamilyLocked(family)
}

func (m *Memory) listProductsByFamilyLocked(family finance.FamilyID) ([]finance.FinancialProduct, error) {
	var out []finance.FinancialProduct
	for _, p := range m.products {
		if p.FamilyID == family {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (m *Memory) CreateApplication(_ context.Context, a finance.Application) (finance.ApplicationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createApplicationLocked(a)
}

func (m *Memory) createApplicationLocked(a finance.Application) (finance.ApplicationID, error) {
	a.ID = m.nextApp
	m.nextApp++
	m.apps[a.ID] = a
	return a.ID, nil
}

func (m *Memory) GetApplication(_ context.Context, id finance.ApplicationID) (finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getApplicationLocked(id)
}

func (m *Memory) getApplicationLocked(id finance.ApplicationID) (finance.Application, error) {
	a, ok := m.apps[id]
	if !ok {
		return finance.Application{}, finance.ErrNotFound
	}
	return a, nil
}

func (m *Memory) UpdateApplication(_ context.Context, a finance.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateApplicationLocked(a)
}

func (m *Memory) updateApplicationLocked(a finance.Application) error {
	if _, ok := m.apps[a.ID]; !ok {
		return finance.ErrNotFound
	}
	if a.CardNumber != "" {
		// Insertion-time uniqueness: the card index outlives deletion.
		if owner, taken := m.cards[a.CardNumber]; taken && owner != a.ID {
			return finance.ErrConflict
		}
		m.cards[a.CardNumber] = a.ID
	}
	m.apps[a.ID] = a
	return nil
}

func (m *Memory) DeleteApplication(_ context.Context, id finance.ApplicationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteApplicationLocked(id)
}

func (m *Memory) deleteApplicationLocked(id finance.ApplicationID) error {
	if _, ok := m.apps[id]; !ok {
		return finance.ErrNotFound
	}
	delete(m.apps, id)
	return nil
}

func (m *Memory) ListPendingByFamily(_ context.Context, family finance.FamilyID) ([]finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPendingByFamilyLocked(family)
}

func (m *Memory) listPendingByFamilyLocked(family finance.FamilyID) ([]finance.Application, error) {
	return m.selectAppsLocked(func(a finance.Application) bool {
		if a.Allowed {
			return false
		}
		u, ok := m.users[a.ApplicantID]
		return ok && u.FamilyID == family
	}), nil
}

func (m *Memory) ListPendingByProduct(_ context.Context, product finance.ProductID) ([]finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPendingByProductLocked(product)
}

func (m *Memory) listPendingByProductLocked(product finance.ProductID) ([]finance.Application, error) {
	return m.selectAppsLocked(func(a finance.Application) bool {
		return !a.Allowed && a.ProductID == product
	}), nil
}

func (m *Memory) ListByApplicant(_ context.Context, applicant finance.UserID) ([]finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByApplicantLocked(applicant)
}

func (m *Memory) listByApplicantLocked(applicant finance.UserID) ([]finance.Application, error) {
	return m.selectAppsLocked(func(a finance.Application) bool {
		return a.ApplicantID == applicant
	}), nil
}

func (m *Memory) ListLoansAccruingOn(_ context.Context, dayOfMonth int) ([]finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLoansAccruingOnLocked(dayOfMonth)
}

func (m *Memory) listLoansAccruingOnLocked(dayOfMonth int) ([]finance.Application, error) {
	return m.selectAppsLocked(func(a finance.Application) bool {
		return a.AccruesOn(dayOfMonth)
	}), nil
}

func (m *Memory) ListLoansExpiredBefore(_ context.Context, now time.Time) ([]finance.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLoansExpiredBeforeLocked(now)
}

func (m *Memory) listLoansExpiredBeforeLocked(now time.Time) ([]finance.Application, error) {
	return m.selectAppsLocked(func(a finance.Application) bool {
		return a.ExpiredAt(now)
	}), nil
}

// selectAppsLocked materializes matching applications newest first
// (descending id, the insertion-order proxy).
func (m *Memory) selectAppsLocked(match func(finance.Application) bool) []finance.Application {
	var out []finance.Application
	for _, a := range m.apps {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// =============================================================================
// CARD INDEX AND JOURNAL
// =============================================================================

func (m *Memory) CardNumberExists(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cardNumberExistsLocked(number)
}

func (m *Memory) cardNumberExistsLocked(number string) (bool, error) {
	_, ok := m.cards[number]
	return ok, nil
}

func (m *Memory) AppendTransfer(_ context.Context, t finance.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTransferLocked(t)
}

func (m *Memory) appendTransferLocked(t finance.Transfer) error {
	m.transfers = append(m.transfers, t)
	return nil
}

func (m *Memory) TransfersByUser(_ context.Context, id finance.UserID) ([]finance.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfersByUserLocked(id)
}

func (m *Memory) transfersByUserLocked(id finance.UserID) ([]finance.Transfer, error) {
	var out []finance.Transfer
	for _, t := range m.transfers {
		if t.FromUserID == id || t.ToUserID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx executes fn while holding the store lock. On error the
// pre-transaction snapshot is restored, so no partial writes survive.
// Holding the lock for the whole unit of work is what makes concurrent
// transitions of the same application mutually exclusive.
func (m *Memory) WithTx(_ context.Context, fn func(finance.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&txView{parent: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users       map[finance.UserID]finance.User
	byNickname  map[string]finance.UserID
	products    map[finance.ProductID]finance.FinancialProduct
	apps        map[finance.ApplicationID]finance.Application
	cards       map[string]finance.ApplicationID
	transfers   []finance.Transfer
	nextProduct finance.ProductID
	nextApp     finance.ApplicationID
}

func (m *Memory) snapshotLocked() memorySnapshot {
	users := make(map[finance.UserID]finance.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	nick := make(map[string]finance.UserID, len(m.byNickname))
	for k, v := range m.byNickname {
		nick[k] = v
	}
	products := make(map[finance.ProductID]finance.FinancialProduct, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	apps := make(map[finance.ApplicationID]finance.Application, len(m.apps))
	for k, v := range m.apps {
		apps[k] = v
	}
	cards := make(map[string]finance.ApplicationID, len(m.cards))
	for k, v := range m.cards {
		cards[k] = v
	}
	return memorySnapshot{
		users:       users,
		byNickname:  nick,
		products:    products,
		apps:        apps,
		cards:       cards,
		transfers:   append([]finance.Transfer(nil), m.transfers...),
		nextProduct: m.nextProduct,
		nextApp:     m.nextApp,
	}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.users = s.users
	m.byNickname = s.byNickname
	m.products = s.products
	m.apps = s.apps
	m.cards = s.cards
	m.transfers = s.transfers
	m.nextProduct = s.nextProduct
	m.nextApp = s.nextApp
}

// txView is the Store handed to WithTx callbacks. The parent's lock is
// already held, so it delegates to the locked methods directly.
type txView struct {
	parent *Memory
}

var _ finance.Store = (*txView)(nil)

func (v *txView) GetUser(_ context.Context, id finance.UserID) (finance.User, error) {
	return v.parent.getUserLocked(id)
}

func (v *txView) FindUserByNickname(_ context.Context, nickname string) (finance.User, error) {
	return v.parent.findUserByNicknameLocked(nickname)
}

func (v *txView) SaveUser(_ context.Context, u finance.User) error {
	return v.parent.saveUserLocked(u)
}

func (v *txView) AdjustBalance(_ context.Context, id finance.UserID, delta finance.Money) error {
	return v.parent.adjustBalanceLocked(id, delta)
}

func (v *txView) CreateProduct(_ context.Context, p finance.FinancialProduct) (finance.ProductID, error) {
	return v.parent.createProductLocked(p)
}

func (v *txView) GetProduct(_ context.Context, id finance.ProductID) (finance.FinancialProduct, error) {
	return v.parent.getProductLocked(id)
}

func (v *txView) ListProductsByFamily(_ context.Context, family finance.FamilyID) ([]finance.FinancialProduct, error) {
	return v.parent.listProductsByFamilyLocked(family)
}

func (v *txView) CreateApplication(_ context.Context, a finance.Application) (finance.ApplicationID, error) {
	return v.parent.createApplicationLocked(a)
}

func (v *txView) GetApplication(_ context.Context, id finance.ApplicationID) (finance.Application, error) {
	return v.parent.getApplicationLocked(id)
}

func (v *txView) UpdateApplication(_ context.Context, a finance.Application) error {
	return v.parent.updateApplicationLocked(a)
}

func (v *txView) DeleteApplication(_ context.Context, id finance.ApplicationID) error {
	return v.parent.deleteApplicationLocked(id)
}

func (v *txView) ListPendingByFamily(_ context.Context, family finance.FamilyID) ([]finance.Application, error) {
	return v.parent.listPendingByFamilyLocked(family)
}

func (v *txView) ListPendingByProduct(_ context.Context, product finance.ProductID) ([]finance.Application, error) {
	return v.parent.listPendingByProductLocked(product)
}

func (v *txView) ListByApplicant(_ context.Context, applicant finance.UserID) ([]finance.Application, error) {
	return v.parent.listByApplicantLocked(applicant)
}

func (v *txView) ListLoansAccruingOn(_ context.Context, dayOfMonth int) ([]finance.Application, error) {
	return v.parent.listLoansAccruingOnLocked(dayOfMonth)
}

func (v *txView) ListLoansExpiredBefore(_ context.Context, now time.Time) ([]finance.Application, error) {
	return v.parent.listLoansExpiredBeforeLocked(now)
}

func (v *txView) CardNumberExists(_ context.Context, number string) (bool, error) {
	return v.parent.cardNumberExistsLocked(number)
}

func (v *txView) AppendTransfer(_ context.Context, t finance.Transfer) error {
	return v.parent.appendTransferLocked(t)
}

func (v *txView) TransfersByUser(_ context.Context, id finance.UserID) ([]finance.Transfer, error) {
	return v.parent.transfersByUserLocked(id)
}
