package finance_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familybank/product-engine/finance"
	"github.com/familybank/product-engine/finance/store"
	"github.com/familybank/product-engine/notify"
	"github.com/familybank/product-engine/points"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

type workflowFixture struct {
	workflow *finance.Workflow
	store    *store.Memory
	points   *points.Recorder
	notify   *notify.Recorder

	guardian  finance.User
	applicant finance.User
	loan      finance.FinancialProduct
	savings   finance.FinancialProduct
}

// newWorkflowFixture seeds one family: a guardian holding 10000, a
// dependent holding 5000, a 5%/30-day loan product and a savings plan.
func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	pts := points.NewRecorder()
	msgs := notify.NewRecorder()

	f := &workflowFixture{
		store:  mem,
		points: pts,
		notify: msgs,
		workflow: &finance.Workflow{
			Store:    mem,
			Cards:    finance.NewCardNumberGeneratorWithRand(rand.New(rand.NewSource(1))),
			Points:   pts,
			Notifier: msgs,
			Now:      func() time.Time { return testNow },
		},
	}

	f.guardian = finance.User{ID: 1, Nickname: "dad", FamilyID: 10, Role: finance.RoleGuardian, Balance: finance.NewMoney(10000)}
	f.applicant = finance.User{ID: 2, Nickname: "kid", FamilyID: 10, Role: finance.RoleDependent, Balance: finance.NewMoney(5000)}
	require.NoError(t, mem.SaveUser(ctx, f.guardian))
	require.NoError(t, mem.SaveUser(ctx, f.applicant))

	f.loan = finance.FinancialProduct{
		GuardianID: f.guardian.ID, FamilyID: 10,
		Name: "starter loan", Rate: 5, PeriodDays: 30, Kind: finance.KindLoan,
	}
	var err error
	f.loan.ID, err = mem.CreateProduct(ctx, f.loan)
	require.NoError(t, err)

	f.savings = finance.FinancialProduct{
		GuardianID: f.guardian.ID, FamilyID: 10,
		Name: "piggy bank", Rate: 3, PeriodDays: 90, Kind: finance.KindSavings,
	}
	f.savings.ID, err = mem.CreateProduct(ctx, f.savings)
	require.NoError(t, err)

	return f
}

func (f *workflowFixture) balance(t *testing.T, id finance.UserID) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Balance.Int64()
}

// =============================================================================
// APPLY
// =============================================================================

func TestWorkflow_Apply_CreatesPendingApplication(t *testing.T) {
	// GIVEN: A dependent and a loan product in the same family
	// WHEN: The dependent applies for 3000
	// THEN: A pending application exists and the guardian is notified

	f := newWorkflowFixture(t)
	ctx := context.Background()

	app, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	assert.False(t, app.Allowed)
	assert.Empty(t, app.CardNumber)
	assert.Equal(t, finance.KindLoan, app.Kind)

	// No money moved yet
	assert.Equal(t, int64(10000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(5000), f.balance(t, f.applicant.ID))

	pending, err := f.workflow.PendingByFamily(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, app.ID, pending[0].ID)

	msgs := f.notify.For("dad")
	require.Len(t, msgs, 1)
	assert.Equal(t, "/financeDetail/1", msgs[0].LinkTarget)
	assert.Contains(t, msgs[0].Body, "kid")
}

func TestWorkflow_Apply_NonPositiveAmount(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Apply(context.Background(), f.applicant.ID, f.loan.ID, finance.NewMoney(0))
	assert.ErrorIs(t, err, finance.ErrValidation)

	_, err = f.workflow.Apply(context.Background(), f.applicant.ID, f.loan.ID, finance.NewMoney(-50))
	assert.ErrorIs(t, err, finance.ErrValidation)
	assert.True(t, finance.IsClientError(err))
}

func TestWorkflow_Apply_UnknownProduct(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Apply(context.Background(), f.applicant.ID, 999, finance.NewMoney(100))
	assert.True(t, finance.IsNotFound(err))
}

// =============================================================================
// ALLOW
// =============================================================================

func TestWorkflow_Allow_Loan_MovesPrincipalAndIssuesCard(t *testing.T) {
	// GIVEN: A pending 3000 loan application; guardian holds 10000
	// WHEN: The guardian allows it
	// THEN: Guardian 7000, applicant 8000, the application carries a
	//       valid card number and a 30-day expiry

	f := newWorkflowFixture(t)
	ctx := context.Background()

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	app, err := f.workflow.Allow(ctx, pending.ID, f.guardian.ID)
	require.NoError(t, err)

	assert.True(t, app.Allowed)
	assert.Len(t, app.CardNumber, 16)
	assert.True(t, finance.ValidCardNumber(app.CardNumber))
	assert.Equal(t, testNow, app.OriginatedAt)
	assert.Equal(t, testNow.AddDate(0, 0, 30), app.ExpiresAt)

	assert.Equal(t, int64(7000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(8000), f.balance(t, f.applicant.ID))

	// Journal holds the matched pair
	transfers, err := f.store.TransfersByUser(ctx, f.applicant.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, finance.ReasonLoanPrincipal, transfers[0].Reason)
	assert.Equal(t, f.guardian.ID, transfers[0].FromUserID)
	assert.Equal(t, f.applicant.ID, transfers[0].ToUserID)
	assert.Equal(t, int64(3000), transfers[0].Amount.Int64())

	// Points awarded on the same pair
	awards := f.points.Awards()
	require.Len(t, awards, 1)
	assert.Equal(t, finance.ReasonLoanPrincipal, awards[0].Reason)

	// Applicant notified with the account link
	msgs := f.notify.For("kid")
	require.Len(t, msgs, 1)
	assert.Equal(t, "/account", msgs[0].LinkTarget)
}

func TestWorkflow_Allow_Savings_DepositsWithGuardian(t *testing.T) {
	// GIVEN: A pending 2000 savings application; applicant holds 5000
	// WHEN: The guardian allows it
	// THEN: The deposit moves applicant -> guardian, no card, no expiry

	f := newWorkflowFixture(t)
	ctx := context.Background()

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.savings.ID, finance.NewMoney(2000))
	require.NoError(t, err)

	app, err := f.workflow.Allow(ctx, pending.ID, f.guardian.ID)
	require.NoError(t, err)

	assert.True(t, app.Allowed)
	assert.Empty(t, app.CardNumber)
	assert.True(t, app.ExpiresAt.IsZero())

	assert.Equal(t, int64(12000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(3000), f.balance(t, f.applicant.ID))

	transfers, err := f.store.TransfersByUser(ctx, f.applicant.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, finance.ReasonSavingsDeposit, transfers[0].Reason)
	assert.Equal(t, f.applicant.ID, transfers[0].FromUserID)
}

func TestWorkflow_Allow_AlreadyAllowed(t *testing.T) {
	// GIVEN: An already-allowed application
	// WHEN: The guardian allows it again
	// THEN: ErrConflict, and no second transfer happens

	f := newWorkflowFixture(t)
	ctx := context.Background()

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)
	_, err = f.workflow.Allow(ctx, pending.ID, f.guardian.ID)
	require.NoError(t, err)

	_, err = f.workflow.Allow(ctx, pending.ID, f.guardian.ID)
	assert.ErrorIs(t, err, finance.ErrConflict)

	assert.Equal(t, int64(7000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(8000), f.balance(t, f.applicant.ID))
}

func TestWorkflow_Allow_CrossFamilyGuardian(t *testing.T) {
	// GIVEN: A guardian from another family
	// WHEN: They try to allow the application
	// THEN: ForbiddenError, application stays pending, balances untouched

	f := newWorkflowFixture(t)
	ctx := context.Background()

	outsider := finance.User{ID: 3, Nickname: "stranger", FamilyID: 20, Role: finance.RoleGuardian, Balance: finance.NewMoney(10000)}
	require.NoError(t, f.store.SaveUser(ctx, outsider))

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	_, err = f.workflow.Allow(ctx, pending.ID, outsider.ID)
	require.Error(t, err)

	var forbidden *finance.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
	assert.True(t, finance.IsForbidden(err))
	assert.Equal(t, finance.FamilyID(20), forbidden.ActorFamily)
	assert.Equal(t, finance.FamilyID(10), forbidden.ProductFamily)

	got, err := f.store.GetApplication(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, int64(10000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(5000), f.balance(t, f.applicant.ID))
}

func TestWorkflow_Allow_InsufficientBalance(t *testing.T) {
	// GIVEN: The guardian holds less than the requested principal
	// WHEN: They allow the loan
	// THEN: InsufficientBalanceError; the application stays pending and
	//       nothing is journaled

	f := newWorkflowFixture(t)
	ctx := context.Background()

	poor := finance.User{ID: 4, Nickname: "mom", FamilyID: 10, Role: finance.RoleGuardian, Balance: finance.NewMoney(1000)}
	require.NoError(t, f.store.SaveUser(ctx, poor))
	product := finance.FinancialProduct{GuardianID: poor.ID, FamilyID: 10, Name: "small loan", Rate: 5, PeriodDays: 30, Kind: finance.KindLoan}
	var err error
	product.ID, err = f.store.CreateProduct(ctx, product)
	require.NoError(t, err)

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, product.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	_, err = f.workflow.Allow(ctx, pending.ID, poor.ID)
	require.Error(t, err)

	var insufficient *finance.InsufficientBalanceError
	assert.ErrorAs(t, err, &insufficient)
	assert.True(t, errors.Is(err, finance.ErrInsufficientBalance))
	assert.Equal(t, int64(1000), insufficient.Available.Int64())
	assert.Equal(t, int64(3000), insufficient.Requested.Int64())

	got, err := f.store.GetApplication(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, int64(1000), f.balance(t, poor.ID))

	transfers, err := f.store.TransfersByUser(ctx, f.applicant.ID)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestWorkflow_Allow_OverdraftPermitted(t *testing.T) {
	// GIVEN: AllowOverdraft is on and the guardian holds 1000
	// WHEN: They allow a 3000 loan
	// THEN: The approval succeeds and the balance goes negative

	f := newWorkflowFixture(t)
	f.workflow.AllowOverdraft = true
	ctx := context.Background()

	poor := finance.User{ID: 4, Nickname: "mom", FamilyID: 10, Role: finance.RoleGuardian, Balance: finance.NewMoney(1000)}
	require.NoError(t, f.store.SaveUser(ctx, poor))
	product := finance.FinancialProduct{GuardianID: poor.ID, FamilyID: 10, Name: "small loan", Rate: 5, PeriodDays: 30, Kind: finance.KindLoan}
	var err error
	product.ID, err = f.store.CreateProduct(ctx, product)
	require.NoError(t, err)

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, product.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	_, err = f.workflow.Allow(ctx, pending.ID, poor.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(-2000), f.balance(t, poor.ID))
	assert.Equal(t, int64(8000), f.balance(t, f.applicant.ID))
}

func TestWorkflow_ConcurrentAllow_ExactlyOneWins(t *testing.T) {
	// GIVEN: One pending application and two racing approvals
	// WHEN: Both run concurrently
	// THEN: Exactly one succeeds; the loser sees a conflict or the
	//       application gone; the principal moves exactly once

	f := newWorkflowFixture(t)
	ctx := context.Background()

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.workflow.Allow(ctx, pending.ID, f.guardian.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.True(t, finance.IsConflict(err) || finance.IsNotFound(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)

	assert.Equal(t, int64(7000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(8000), f.balance(t, f.applicant.ID))

	transfers, err := f.store.TransfersByUser(ctx, f.applicant.ID)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}

// =============================================================================
// REFUSE
// =============================================================================

func TestWorkflow_Refuse_DeletesApplication(t *testing.T) {
	// GIVEN: A pending application
	// WHEN: The guardian refuses it
	// THEN: It is deleted, no money moves, the applicant is notified

	f := newWorkflowFixture(t)
	ctx := context.Background()

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	require.NoError(t, f.workflow.Refuse(ctx, pending.ID, f.guardian.ID))

	_, err = f.store.GetApplication(ctx, pending.ID)
	assert.True(t, finance.IsNotFound(err))

	assert.Equal(t, int64(10000), f.balance(t, f.guardian.ID))
	assert.Equal(t, int64(5000), f.balance(t, f.applicant.ID))

	msgs := f.notify.For("kid")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Title, "refused")
}

func TestWorkflow_Refuse_CrossFamilyGuardian(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	outsider := finance.User{ID: 3, Nickname: "stranger", FamilyID: 20, Role: finance.RoleGuardian, Balance: finance.NewMoney(10000)}
	require.NoError(t, f.store.SaveUser(ctx, outsider))

	pending, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(3000))
	require.NoError(t, err)

	err = f.workflow.Refuse(ctx, pending.ID, outsider.ID)
	assert.True(t, finance.IsForbidden(err))

	// Still pending
	_, err = f.store.GetApplication(ctx, pending.ID)
	assert.NoError(t, err)
}

// =============================================================================
// REGISTRY VIEWS
// =============================================================================

func TestWorkflow_PendingViews_NewestFirst(t *testing.T) {
	// GIVEN: Three applications; the middle one gets allowed
	// WHEN: The pending views are read
	// THEN: Only pending applications appear, newest first

	f := newWorkflowFixture(t)
	ctx := context.Background()

	first, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(100))
	require.NoError(t, err)
	second, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(200))
	require.NoError(t, err)
	third, err := f.workflow.Apply(ctx, f.applicant.ID, f.savings.ID, finance.NewMoney(300))
	require.NoError(t, err)

	_, err = f.workflow.Allow(ctx, second.ID, f.guardian.ID)
	require.NoError(t, err)

	byFamily, err := f.workflow.PendingByFamily(ctx, 10)
	require.NoError(t, err)
	require.Len(t, byFamily, 2)
	assert.Equal(t, third.ID, byFamily[0].ID)
	assert.Equal(t, first.ID, byFamily[1].ID)

	byProduct, err := f.workflow.PendingByProduct(ctx, f.loan.ID)
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, first.ID, byProduct[0].ID)
}

func TestWorkflow_ByNickname(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	app, err := f.workflow.Apply(ctx, f.applicant.ID, f.loan.ID, finance.NewMoney(100))
	require.NoError(t, err)
	_, err = f.workflow.Allow(ctx, app.ID, f.guardian.ID)
	require.NoError(t, err)

	// Allowed applications still show in the applicant's own list
	apps, err := f.workflow.ByNickname(ctx, "kid")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.True(t, apps[0].Allowed)

	_, err = f.workflow.ByNickname(ctx, "nobody")
	assert.True(t, finance.IsNotFound(err))
}
