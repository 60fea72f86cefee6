package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/errors"
	"storefront/internal/testutil"
)

func newOrder(customerID string, productID int) *domain.Order {
	return &domain.Order{
		CustomerID: customerID,
		Status: domain.Status{
			Phase:         domain.PhaseAwaitingShipmentChoice,
			PaymentMethod: domain.PaymentMethodUnset,
			DeliveryMode:  domain.DeliveryModePickup,
		},
		Total: decimal.NewFromInt(9000),
		Lines: []domain.OrderLine{
			{ProductID: productID, Quantity: 3, UnitPrice: decimal.NewFromInt(3000)},
		},
	}
}

// Unit Tests

func TestNewMySQLOrderRepository(t *testing.T) {
	db := &sql.DB{}
	repo := NewMySQLOrderRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
	assert.NotNil(t, repo.lines)
}

// Integration Tests

func TestOrderRepository_InsertAndFindByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	productID := testutil.InsertProduct(t, db, "Chair", "3000.00", 10)

	order := newOrder("cust-1", productID)
	id, err := repo.Insert(context.Background(), order)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, order.Lines[0].OrderID)

	found, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", found.CustomerID)
	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, found.Status.Phase)
	assert.Equal(t, domain.DeliveryModePickup, found.Status.DeliveryMode)
	assert.True(t, decimal.NewFromInt(9000).Equal(found.Total))
	require.Len(t, found.Lines, 1)
	assert.Equal(t, 3, found.Lines[0].Quantity)
	assert.Nil(t, found.TrackingCode)
	assert.Nil(t, found.GatewayToken)
}

func TestOrderRepository_FindByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)

	order, err := repo.FindByID(context.Background(), 9999)
	assert.Error(t, err)
	assert.Nil(t, order)

	nfe, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
	assert.NotNil(t, nfe)
}

func TestOrderRepository_Update_GuardedByPhase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	productID := testutil.InsertProduct(t, db, "Lamp", "3000.00", 10)

	order := newOrder("cust-2", productID)
	_, err := repo.Insert(context.Background(), order)
	require.NoError(t, err)

	order.Status.Phase = domain.PhaseAwaitingPayment
	order.Status.DeliveryMode = domain.DeliveryModeDelivery
	require.NoError(t, repo.Update(context.Background(), order, domain.PhaseAwaitingShipmentChoice))

	// Same expected phase again: the row moved on, so the guard refuses.
	err = repo.Update(context.Background(), order, domain.PhaseAwaitingShipmentChoice)
	_, ok := errors.IsConflictError(err)
	assert.True(t, ok)

	found, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwaitingPayment, found.Status.Phase)
	assert.Equal(t, domain.DeliveryModeDelivery, found.Status.DeliveryMode)
}

func TestOrderRepository_FindByGatewayToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	productID := testutil.InsertProduct(t, db, "Desk", "3000.00", 10)

	order := newOrder("cust-3", productID)
	token := "01ab-token"
	order.GatewayToken = &token
	_, err := repo.Insert(context.Background(), order)
	require.NoError(t, err)

	found, err := repo.FindByGatewayToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByGatewayToken(context.Background(), "unknown")
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestOrderRepository_FindByGatewayToken_KeepsSupersededTokens(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	productID := testutil.InsertProduct(t, db, "Shelf", "3000.00", 10)

	order := newOrder("cust-4", productID)
	order.Status.Phase = domain.PhaseAwaitingPayment
	first := "tok-first"
	order.GatewayToken = &first
	_, err := repo.Insert(context.Background(), order)
	require.NoError(t, err)

	second := "tok-second"
	order.GatewayToken = &second
	require.NoError(t, repo.Update(context.Background(), order, domain.PhaseAwaitingPayment))

	for _, token := range []string{first, second} {
		found, err := repo.FindByGatewayToken(context.Background(), token)
		require.NoError(t, err, token)
		assert.Equal(t, order.ID, found.ID)
		require.NotNil(t, found.GatewayToken)
		assert.Equal(t, second, *found.GatewayToken)
	}
}

func TestOrderRepository_ListAndCountByPhases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	productID := testutil.InsertProduct(t, db, "Rug", "3000.00", 10)

	first := newOrder("cust-4", productID)
	first.Status.Phase = domain.PhasePaid
	_, err := repo.Insert(context.Background(), first)
	require.NoError(t, err)

	second := newOrder("cust-4", productID)
	second.Status.Phase = domain.PhaseInPreparation
	_, err = repo.Insert(context.Background(), second)
	require.NoError(t, err)

	_, err = repo.Insert(context.Background(), newOrder("cust-5", productID))
	require.NoError(t, err)

	phases := []domain.Phase{domain.PhasePaid, domain.PhaseInPreparation}

	oldest, err := repo.ListByPhases(context.Background(), phases, false)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, first.ID, oldest[0].ID)
	assert.Len(t, oldest[0].Lines, 1)

	newest, err := repo.ListByPhases(context.Background(), phases, true)
	require.NoError(t, err)
	assert.Equal(t, second.ID, newest[0].ID)

	count, err := repo.CountByPhases(context.Background(), phases)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mine, err := repo.ListByCustomer(context.Background(), "cust-4")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
}

func TestOrderRepository_TransactionRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SetupTestTables(t, db)
	defer testutil.CleanupTestDB(t, db)

	productID := testutil.InsertProduct(t, db, "Vase", "3000.00", 10)

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	id, err := NewMySQLOrderRepository(tx).Insert(context.Background(), newOrder("cust-6", productID))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = NewMySQLOrderRepository(db).FindByID(context.Background(), id)
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}
