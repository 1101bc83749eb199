package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familybank/product-engine/finance"
	"github.com/familybank/product-engine/finance/store"
)

func seedUser(t *testing.T, m *store.Memory, id finance.UserID, nickname string, balance int64) {
	t.Helper()
	require.NoError(t, m.SaveUser(context.Background(), finance.User{
		ID: id, Nickname: nickname, FamilyID: 1, Role: finance.RoleGuardian, Balance: finance.NewMoney(balance),
	}))
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A user with balance 100
	// WHEN: A unit of work adjusts the balance and then fails
	// THEN: The adjustment does not survive

	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, 1, "dad", 100)

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(s finance.Store) error {
		if err := s.AdjustBalance(ctx, 1, finance.NewMoney(-40)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := m.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.Balance.Int64())
}

func TestMemory_WithTx_CommitsOnSuccess(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, 1, "dad", 100)

	err := m.WithTx(ctx, func(s finance.Store) error {
		return s.AdjustBalance(ctx, 1, finance.NewMoney(-40))
	})
	require.NoError(t, err)

	u, err := m.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(60), u.Balance.Int64())
}

func TestMemory_CardNumberIndex_SurvivesDeletion(t *testing.T) {
	// GIVEN: An application that reserved a card number and was deleted
	// WHEN: Another application tries to take the same number
	// THEN: The write fails with ErrConflict; the number stays reserved
	//       across the application's whole afterlife

	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, 1, "dad", 100)

	first, err := m.CreateApplication(ctx, finance.Application{ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10)})
	require.NoError(t, err)
	second, err := m.CreateApplication(ctx, finance.Application{ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10)})
	require.NoError(t, err)

	const number = "1111130000000001"
	require.NoError(t, m.UpdateApplication(ctx, finance.Application{ID: first, ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10), Allowed: true, CardNumber: number}))

	taken, err := m.CardNumberExists(ctx, number)
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, m.DeleteApplication(ctx, first))

	// Still reserved after deletion
	taken, err = m.CardNumberExists(ctx, number)
	require.NoError(t, err)
	assert.True(t, taken)

	err = m.UpdateApplication(ctx, finance.Application{ID: second, ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10), Allowed: true, CardNumber: number})
	assert.ErrorIs(t, err, finance.ErrConflict)
}

func TestMemory_NicknameReindexOnSave(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, 1, "dad", 100)

	// Rename
	require.NoError(t, m.SaveUser(ctx, finance.User{ID: 1, Nickname: "father", FamilyID: 1, Role: finance.RoleGuardian, Balance: finance.NewMoney(100)}))

	_, err := m.FindUserByNickname(ctx, "dad")
	assert.ErrorIs(t, err, finance.ErrNotFound)

	u, err := m.FindUserByNickname(ctx, "father")
	require.NoError(t, err)
	assert.Equal(t, finance.UserID(1), u.ID)
}

func TestMemory_LoanSelectors(t *testing.T) {
	// GIVEN: One active loan originated Jan 15 expiring Feb 14, one
	//        pending application, one savings plan
	// WHEN: The accrual and expiry selectors run
	// THEN: Only the active loan matches its selector

	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, 1, "dad", 100)

	jan15 := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	active, err := m.CreateApplication(ctx, finance.Application{ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10)})
	require.NoError(t, err)
	require.NoError(t, m.UpdateApplication(ctx, finance.Application{
		ID: active, ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(10),
		Allowed: true, OriginatedAt: jan15, ExpiresAt: jan15.AddDate(0, 0, 30),
	}))
	_, err = m.CreateApplication(ctx, finance.Application{ApplicantID: 1, ProductID: 1, Kind: finance.KindLoan, Amount: finance.NewMoney(20)})
	require.NoError(t, err)
	_, err = m.CreateApplication(ctx, finance.Application{ApplicantID: 1, ProductID: 2, Kind: finance.KindSavings, Amount: finance.NewMoney(30), Allowed: true})
	require.NoError(t, err)

	accruing, err := m.ListLoansAccruingOn(ctx, 15)
	require.NoError(t, err)
	require.Len(t, accruing, 1)
	assert.Equal(t, active, accruing[0].ID)

	accruing, err = m.ListLoansAccruingOn(ctx, 16)
	require.NoError(t, err)
	assert.Empty(t, accruing)

	expired, err := m.ListLoansExpiredBefore(ctx, jan15.AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, active, expired[0].ID)

	expired, err = m.ListLoansExpiredBefore(ctx, jan15.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Empty(t, expired)
}
