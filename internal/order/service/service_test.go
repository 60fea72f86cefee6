package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/errors"
	"storefront/internal/infrastructure/memory"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/infrastructure/tracing"
	"storefront/internal/inventory"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/storage"
)

const customer = "cust-1"

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent []domain.CustomerMessage
}

func (n *recordingNotifier) NotifyCustomer(ctx context.Context, msg domain.CustomerMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []domain.MessageKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.MessageKind, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Kind
	}
	return out
}

type fixture struct {
	store    *memory.Store
	gateway  *payment.Simulator
	notifier *recordingNotifier
	idem     *memory.IdempotencyStore
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTx(t, nil)
}

// newFixtureWithTx lets a test wrap the store's TxManager.
func newFixtureWithTx(t *testing.T, wrap func(storage.TxManager) storage.TxManager) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.NewStore(),
		gateway:  payment.NewSimulator(),
		notifier: &recordingNotifier{},
		idem:     memory.NewIdempotencyStore(),
	}
	var tx storage.TxManager = f.store
	if wrap != nil {
		tx = wrap(tx)
	}

	logger := zap.NewNop()
	recorder := metrics.NewNop()
	f.svc = NewService(
		tx,
		inventory.NewLedger(logger, recorder),
		notification.NewRouter(tx, logger, recorder),
		f.gateway,
		f.notifier,
		f.idem,
		Config{
			Shipping: domain.ShippingPolicy{
				Fee:                   decimal.NewFromInt(3990),
				FreeShippingThreshold: decimal.NewFromInt(25000),
			},
			MaxRetryAttempts: 3,
			ReturnURL:        "http://localhost/payments/webpay/return",
		},
		logger,
		recorder,
		tracing.New(),
	)
	return f
}

func (f *fixture) product(stock int, price int64) int {
	return f.store.AddProduct(domain.Product{Name: "Widget", Price: decimal.NewFromInt(price), Stock: stock})
}

func (f *fixture) stock(t *testing.T, id int) int {
	t.Helper()
	p, err := f.store.Reader().Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) order(t *testing.T, id int64) *domain.Order {
	t.Helper()
	o, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) create(t *testing.T, productID, qty int) *domain.Order {
	t.Helper()
	out, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customer,
		Lines:      []LineRequest{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	return out.Order
}

// awaitingPayment creates an order and chooses the delivery mode.
func (f *fixture) awaitingPayment(t *testing.T, productID, qty int, mode domain.DeliveryMode) *domain.Order {
	t.Helper()
	o := f.create(t, productID, qty)
	out, err := f.svc.ChooseShipping(context.Background(), o.ID, customer, mode)
	require.NoError(t, err)
	return out.Order
}

func (f *fixture) startPayment(t *testing.T, orderID int64) string {
	t.Helper()
	redirect, err := f.svc.StartGatewayPayment(context.Background(), orderID, customer, "")
	require.NoError(t, err)
	require.NotEmpty(t, redirect.Token)
	return redirect.Token
}

// paid drives a new order through the gateway to PAID.
func (f *fixture) paid(t *testing.T, productID, qty int, mode domain.DeliveryMode) *domain.Order {
	t.Helper()
	o := f.awaitingPayment(t, productID, qty, mode)
	out, err := f.svc.CommitGatewayPayment(context.Background(), f.startPayment(t, o.ID))
	require.NoError(t, err)
	require.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	return out.Order
}

func (f *fixture) inPreparation(t *testing.T, productID, qty int, mode domain.DeliveryMode) *domain.Order {
	t.Helper()
	o := f.paid(t, productID, qty, mode)
	out, err := f.svc.StartPreparation(context.Background(), o.ID)
	require.NoError(t, err)
	return out.Order
}

// Unit Tests

func TestNext_TransitionTable(t *testing.T) {
	allowed := map[domain.Phase][]Event{
		domain.PhaseAwaitingShipmentChoice: {EventChooseShipping},
		domain.PhaseAwaitingPayment:        {EventStartGatewayPayment, EventGatewayApproved, EventSelectBankTransfer},
		domain.PhasePaymentPendingReview:   {EventConfirmTransfer},
		domain.PhasePaid:                   {EventStartPreparation},
		domain.PhaseInPreparation:          {EventDispatch, EventReportShortage},
		domain.PhaseShortageReported:       {EventResolveShortage, EventCancelShortage},
		domain.PhaseDispatched:             {},
		domain.PhaseRefunded:               {},
		domain.PhaseReservationRequested:   {EventMarkReservationAvailable},
		domain.PhaseReservationAvailable:   {EventChooseShipping, EventStartGatewayPayment, EventGatewayApproved},
	}
	events := []Event{
		EventChooseShipping, EventStartGatewayPayment, EventGatewayApproved, EventSelectBankTransfer,
		EventConfirmTransfer, EventStartPreparation, EventDispatch, EventReportShortage,
		EventResolveShortage, EventCancelShortage, EventMarkReservationAvailable,
	}

	for phase, ok := range allowed {
		for _, event := range events {
			order := &domain.Order{ID: 9, Status: domain.Status{Phase: phase}}
			_, err := Next(order, event)

			if containsEvent(ok, event) {
				assert.NoError(t, err, "%s --%s-->", phase, event)
				continue
			}
			ite, isInvalid := errors.IsInvalidTransitionError(err)
			require.True(t, isInvalid, "%s --%s--> should be refused", phase, event)
			assert.Equal(t, int64(9), ite.OrderID)
			assert.Equal(t, string(phase), ite.From)
			assert.Equal(t, string(event), ite.Event)
		}
	}
}

func containsEvent(list []Event, e Event) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

func TestNext_TerminalPhasesAcceptNothing(t *testing.T) {
	for phase := range transitions {
		assert.False(t, phase.Terminal(), "terminal phase %s has outgoing transitions", phase)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{CustomerID: customer})
	ve, ok := errors.IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "lines", ve.Details[0].Field)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customer,
		Lines:      []LineRequest{{ProductID: 1, Quantity: 0}},
	})
	ve, ok = errors.IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "lines[0].quantity", ve.Details[0].Field)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		Lines: []LineRequest{{ProductID: 1, Quantity: 1}},
	})
	_, ok = errors.IsValidationError(err)
	assert.True(t, ok)
}

func TestCreateOrder_SnapshotsPriceAndMergesLines(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1500)

	out, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customer,
		Lines:      []LineRequest{{ProductID: id, Quantity: 1}, {ProductID: id, Quantity: 2}},
	})
	require.NoError(t, err)

	o := out.Order
	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, o.Status.Phase)
	assert.Equal(t, domain.PaymentMethodUnset, o.Status.PaymentMethod)
	assert.Equal(t, domain.DeliveryModePickup, o.Status.DeliveryMode)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3, o.Lines[0].Quantity)
	assert.True(t, o.Lines[0].UnitPrice.Equal(decimal.NewFromInt(1500)))
	assert.True(t, o.Total.Equal(decimal.NewFromInt(4500)))
	assert.Equal(t, 10, f.stock(t, id), "checkout must not take stock")
}

func TestCreateOrder_InsufficientStockPersistsNothing(t *testing.T) {
	f := newFixture(t)
	id := f.product(1, 1000)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customer,
		Lines:      []LineRequest{{ProductID: id, Quantity: 2}},
	})
	se, ok := errors.IsStockInsufficientError(err)
	require.True(t, ok)
	assert.Equal(t, 1, se.Available)

	orders, err := f.svc.ListByCustomer(context.Background(), customer)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customer,
		Lines:      []LineRequest{{ProductID: 99, Quantity: 1}},
	})
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestChooseShipping_RepricesTotal(t *testing.T) {
	f := newFixture(t)
	cheap := f.product(10, 1000)
	expensive := f.product(10, 30000)

	delivery := f.awaitingPayment(t, cheap, 2, domain.DeliveryModeDelivery)
	assert.True(t, delivery.Total.Equal(decimal.NewFromInt(5990)))
	assert.Equal(t, domain.PhaseAwaitingPayment, delivery.Status.Phase)

	pickup := f.awaitingPayment(t, cheap, 2, domain.DeliveryModePickup)
	assert.True(t, pickup.Total.Equal(decimal.NewFromInt(2000)))

	free := f.awaitingPayment(t, expensive, 1, domain.DeliveryModeDelivery)
	assert.True(t, free.Total.Equal(decimal.NewFromInt(30000)))
}

func TestChooseShipping_RejectsOtherCustomerAndBadMode(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	_, err := f.svc.ChooseShipping(context.Background(), o.ID, "someone-else", domain.DeliveryModePickup)
	_, ok := errors.IsAuthorizationError(err)
	assert.True(t, ok)

	_, err = f.svc.ChooseShipping(context.Background(), o.ID, customer, domain.DeliveryMode("DRONE"))
	_, ok = errors.IsValidationError(err)
	assert.True(t, ok)

	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, f.order(t, o.ID).Status.Phase)
}

func TestTransition_InvalidLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	_, err := f.svc.StartPreparation(context.Background(), o.ID)
	ite, ok := errors.IsInvalidTransitionError(err)
	require.True(t, ok)
	assert.Equal(t, string(domain.PhaseAwaitingShipmentChoice), ite.From)

	_, err = f.svc.Dispatch(context.Background(), o.ID, "TRK")
	_, ok = errors.IsInvalidTransitionError(err)
	assert.True(t, ok)

	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, f.order(t, o.ID).Status.Phase)
}

// Scenario Tests

func TestScenarioA_GatewayPurchaseWithDelivery(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)

	o := f.awaitingPayment(t, id, 2, domain.DeliveryModeDelivery)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(2000).Add(decimal.NewFromInt(3990))))

	redirect, err := f.svc.StartGatewayPayment(context.Background(), o.ID, customer, "")
	require.NoError(t, err)
	assert.Contains(t, redirect.URL, "token_ws="+redirect.Token)
	assert.Equal(t, domain.PaymentMethodOnlineGateway, redirect.Order.Status.PaymentMethod)
	assert.Equal(t, 5, f.stock(t, id), "opening a payment must not take stock")

	out, err := f.svc.CommitGatewayPayment(context.Background(), redirect.Token)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	assert.True(t, out.Order.StockCommitted)
	assert.Equal(t, 3, f.stock(t, id))
	assert.Equal(t, []domain.MessageKind{domain.MessagePaymentConfirmed}, f.notifier.kinds())
}

func TestScenarioB_LastUnitRace(t *testing.T) {
	f := newFixture(t)
	id := f.product(1, 1000)

	tokens := make([]string, 2)
	ids := make([]int64, 2)
	for i := range tokens {
		o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
		ids[i] = o.ID
		tokens[i] = f.startPayment(t, o.ID)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CommitGatewayPayment(context.Background(), tokens[i])
		}(i)
	}
	wg.Wait()

	var paid, refused int
	for i, err := range errs {
		if err == nil {
			paid++
			assert.Equal(t, domain.PhasePaid, f.order(t, ids[i]).Status.Phase)
			continue
		}
		_, ok := errors.IsStockInsufficientError(err)
		require.True(t, ok, "unexpected error: %v", err)
		refused++
		assert.Equal(t, domain.PhaseAwaitingPayment, f.order(t, ids[i]).Status.Phase)
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, refused)
	assert.Equal(t, 0, f.stock(t, id))
}

func TestScenarioC_ReservationLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.product(0, 1000)

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID:  customer,
		Lines:       []LineRequest{{ProductID: id, Quantity: 2}},
		Reservation: true,
	})
	require.NoError(t, err)
	o := created.Order
	assert.True(t, o.IsReservation)
	assert.Equal(t, domain.PhaseReservationRequested, o.Status.Phase)
	require.NotNil(t, created.Notification)
	assert.Equal(t, domain.RoleLogistics, created.Notification.TargetRole)
	assert.Equal(t, domain.CategoryReservationRequest, created.Notification.Category)

	// Not available while stock is short.
	_, err = f.svc.MarkReservationAvailable(context.Background(), o.ID)
	_, ok := errors.IsStockInsufficientError(err)
	require.True(t, ok)

	err = f.store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := inventory.NewLedger(zap.NewNop(), metrics.NewNop()).Restock(ctx, tx.Products(), id, 3)
		return err
	})
	require.NoError(t, err)

	available, err := f.svc.MarkReservationAvailable(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReservationAvailable, available.Order.Status.Phase)
	assert.Equal(t, domain.CategoryReservationAvailable, available.Notification.Category)
	assert.Equal(t, 3, f.stock(t, id), "stock is untouched until payment")
	assert.Contains(t, f.notifier.kinds(), domain.MessageReservationAvailable)

	out, err := f.svc.CommitGatewayPayment(context.Background(), f.startPayment(t, o.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	assert.Equal(t, 1, f.stock(t, id))

	trail, err := f.svc.Notifications(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	for _, n := range trail {
		assert.Equal(t, domain.NotificationResolved, n.Status, "%s should be resolved", n.Category)
	}
}

func TestScenarioD_ShortageCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.inPreparation(t, id, 2, domain.DeliveryModePickup)
	require.Equal(t, 3, f.stock(t, id))

	first, err := f.svc.ReportShortage(context.Background(), o.ID, "only one unit on the shelf")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseShortageReported, first.Order.Status.Phase)

	_, err = f.svc.ReportShortage(context.Background(), o.ID, "again")
	_, ok := errors.IsInvalidTransitionError(err)
	require.True(t, ok)

	open, err := f.svc.OpenNotifications(context.Background(), domain.RoleCustomerSupport)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.CategoryShortageAlert, open[0].Category)

	out, err := f.svc.CancelShortage(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRefunded, out.Order.Status.Phase)
	assert.False(t, out.Order.StockCommitted)
	assert.Equal(t, domain.NotificationCancelled, out.Notification.Status)
	assert.Equal(t, 5, f.stock(t, id))
	assert.Contains(t, f.notifier.kinds(), domain.MessageRefunded)

	_, err = f.svc.CancelShortage(context.Background(), o.ID)
	_, ok = errors.IsInvalidTransitionError(err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.stock(t, id), "a second cancel restores nothing")
}

func TestResolveShortage_ReturnsToPreparation(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.inPreparation(t, id, 1, domain.DeliveryModePickup)

	_, err := f.svc.ReportShortage(context.Background(), o.ID, "")
	require.NoError(t, err)

	out, err := f.svc.ResolveShortage(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInPreparation, out.Order.Status.Phase)
	assert.Equal(t, domain.NotificationResolved, out.Notification.Status)
	assert.Equal(t, 4, f.stock(t, id))
}

// Payment Tests

func TestCommitGatewayPayment_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 2, domain.DeliveryModePickup)
	token := f.startPayment(t, o.ID)

	_, err := f.svc.CommitGatewayPayment(context.Background(), token)
	require.NoError(t, err)

	again, err := f.svc.CommitGatewayPayment(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, domain.PhasePaid, again.Order.Status.Phase)
	assert.Equal(t, 3, f.stock(t, id))
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestCommitGatewayPayment_ReplayWithoutMemo(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 2, domain.DeliveryModePickup)
	token := f.startPayment(t, o.ID)

	_, err := f.svc.CommitGatewayPayment(context.Background(), token)
	require.NoError(t, err)

	// A fresh memo store forces the replay to be detected from the order phase.
	f.svc.idem = memory.NewIdempotencyStore()
	again, err := f.svc.CommitGatewayPayment(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 3, f.stock(t, id))
}

func TestCommitGatewayPayment_Declined(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	token := f.startPayment(t, o.ID)
	f.gateway.Decline(token, -1)

	_, err := f.svc.CommitGatewayPayment(context.Background(), token)
	ge, ok := errors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, -1, ge.ResponseCode)
	assert.Equal(t, domain.PhaseAwaitingPayment, f.order(t, o.ID).Status.Phase)
	assert.Equal(t, 5, f.stock(t, id))

	// The order stays retryable with a new gateway transaction.
	out, err := f.svc.CommitGatewayPayment(context.Background(), f.startPayment(t, o.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
}

func TestCommitGatewayPayment_Timeout(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	token := f.startPayment(t, o.ID)
	f.gateway.FailNext(context.DeadlineExceeded)

	_, err := f.svc.CommitGatewayPayment(context.Background(), token)
	ge, ok := errors.IsGatewayError(err)
	require.True(t, ok)
	assert.True(t, ge.Timeout)
	assert.Equal(t, domain.PhaseAwaitingPayment, f.order(t, o.ID).Status.Phase)
	assert.Equal(t, 5, f.stock(t, id))
}

func TestCommitGatewayPayment_UnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CommitGatewayPayment(context.Background(), "no-such-token")
	_, ok := errors.IsValidationError(err)
	assert.True(t, ok)

	_, err = f.svc.CommitGatewayPayment(context.Background(), "  ")
	_, ok = errors.IsValidationError(err)
	assert.True(t, ok)
}

func TestCommitGatewayPayment_InFlightCallbackConflicts(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	token := f.startPayment(t, o.ID)

	locked, err := f.idem.TryLock(context.Background(), commitScope, token)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.svc.CommitGatewayPayment(context.Background(), token)
	_, ok := errors.IsConflictError(err)
	assert.True(t, ok)
	assert.Equal(t, 5, f.stock(t, id))
}

// pausingIdempotency holds the first TryLock until release is closed.
type pausingIdempotency struct {
	IdempotencyStore
	once     sync.Once
	arrived  chan struct{}
	release  chan struct{}
	noMemory bool
}

func newPausingIdempotency(inner IdempotencyStore) *pausingIdempotency {
	return &pausingIdempotency{IdempotencyStore: inner, arrived: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingIdempotency) TryLock(ctx context.Context, scope, key string) (bool, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.arrived)
		<-p.release
	}
	return p.IdempotencyStore.TryLock(ctx, scope, key)
}

func (p *pausingIdempotency) Remember(ctx context.Context, scope, key, value string) error {
	if p.noMemory {
		return nil
	}
	return p.IdempotencyStore.Remember(ctx, scope, key, value)
}

// countingGateway counts commits and can run a hook before the next one.
type countingGateway struct {
	payment.Gateway
	mu           sync.Mutex
	commits      int
	beforeCommit func()
}

func (g *countingGateway) Commit(ctx context.Context, token string) (*payment.CommitResponse, error) {
	g.mu.Lock()
	g.commits++
	hook := g.beforeCommit
	g.beforeCommit = nil
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	return g.Gateway.Commit(ctx, token)
}

func (g *countingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commits
}

func TestCommitGatewayPayment_DuplicateWaitingOnLockIsReplay(t *testing.T) {
	for _, tt := range []struct {
		name     string
		noMemory bool
	}{
		{"memo recorded", false},
		{"memo lost", true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.product(5, 1000)
			o := f.awaitingPayment(t, id, 2, domain.DeliveryModePickup)
			token := f.startPayment(t, o.ID)

			gateway := &countingGateway{Gateway: f.gateway}
			idem := newPausingIdempotency(f.idem)
			idem.noMemory = tt.noMemory
			f.svc.gateway, f.svc.idem = gateway, idem

			// The late callback reads the order as payable, then stalls before the lock.
			type result struct {
				out *Outcome
				err error
			}
			late := make(chan result, 1)
			go func() {
				out, err := f.svc.CommitGatewayPayment(context.Background(), token)
				late <- result{out, err}
			}()
			<-idem.arrived

			first, err := f.svc.CommitGatewayPayment(context.Background(), token)
			require.NoError(t, err)
			require.False(t, first.Replayed)

			close(idem.release)
			r := <-late
			require.NoError(t, r.err)
			assert.True(t, r.out.Replayed)
			assert.Equal(t, domain.PhasePaid, r.out.Order.Status.Phase)
			assert.Equal(t, 1, gateway.count())
			assert.Equal(t, 3, f.stock(t, id))
			assert.Len(t, f.notifier.kinds(), 1)
		})
	}
}

func TestCommitGatewayPayment_SupersededTokenStillResolves(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	first := f.startPayment(t, o.ID)
	second := f.startPayment(t, o.ID)
	require.NotEqual(t, first, second)

	out, err := f.svc.CommitGatewayPayment(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	require.NotNil(t, out.Order.GatewayToken)
	assert.Equal(t, first, *out.Order.GatewayToken)

	again, err := f.svc.CommitGatewayPayment(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 4, f.stock(t, id))
}

func TestCommitGatewayPayment_TransitionLostToOtherTokenIsReplay(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	first := f.startPayment(t, o.ID)
	second := f.startPayment(t, o.ID)

	gateway := &countingGateway{Gateway: f.gateway}
	f.svc.gateway = gateway
	// The second transaction completes while the first is still at the gateway.
	gateway.beforeCommit = func() {
		out, err := f.svc.CommitGatewayPayment(context.Background(), second)
		require.NoError(t, err)
		require.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	}

	out, err := f.svc.CommitGatewayPayment(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, domain.PhasePaid, out.Order.Status.Phase)
	assert.Equal(t, 2, gateway.count())
	assert.Equal(t, 4, f.stock(t, id))
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestStartGatewayPayment_GatewayFailureLeavesOrder(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	f.gateway.FailNext(stderrors.New("connection reset"))

	_, err := f.svc.StartGatewayPayment(context.Background(), o.ID, customer, "")
	_, ok := errors.IsGatewayError(err)
	require.True(t, ok)

	after := f.order(t, o.ID)
	assert.Nil(t, after.GatewayToken)
	assert.Equal(t, domain.PaymentMethodUnset, after.Status.PaymentMethod)
}

func TestStartGatewayPayment_NotPayable(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.create(t, id, 1)

	_, err := f.svc.StartGatewayPayment(context.Background(), o.ID, customer, "")
	_, ok := errors.IsInvalidTransitionError(err)
	assert.True(t, ok)
}

func TestBankTransfer_ConfirmTakesStockAndResolves(t *testing.T) {
	f := newFixture(t)
	id := f.product(5, 1000)
	o := f.awaitingPayment(t, id, 2, domain.DeliveryModePickup)

	selected, err := f.svc.SelectBankTransfer(context.Background(), o.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaymentPendingReview, selected.Order.Status.Phase)
	assert.Equal(t, domain.PaymentMethodBankTransfer, selected.Order.Status.PaymentMethod)
	assert.Equal(t, domain.CategoryTransferPendingReview, selected.Notification.Category)
	assert.Equal(t, domain.RoleCustomerSupport, selected.Notification.TargetRole)
	assert.Equal(t, 5, f.stock(t, id))

	// The gateway path is closed while the transfer is pending.
	_, err = f.svc.StartGatewayPayment(context.Background(), o.ID, customer, "")
	_, ok := errors.IsInvalidTransitionError(err)
	assert.True(t, ok)

	confirmed, err := f.svc.ConfirmTransfer(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePaid, confirmed.Order.Status.Phase)
	assert.Equal(t, domain.NotificationResolved, confirmed.Notification.Status)
	assert.Equal(t, 3, f.stock(t, id))

	_, err = f.svc.ConfirmTransfer(context.Background(), o.ID)
	_, ok = errors.IsInvalidTransitionError(err)
	assert.True(t, ok)
	assert.Equal(t, 3, f.stock(t, id))
}

// Fulfillment Tests

func TestDispatch_TrackingCodeRules(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)

	delivery := f.inPreparation(t, id, 1, domain.DeliveryModeDelivery)
	_, err := f.svc.Dispatch(context.Background(), delivery.ID, " ")
	_, ok := errors.IsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseInPreparation, f.order(t, delivery.ID).Status.Phase)

	out, err := f.svc.Dispatch(context.Background(), delivery.ID, "TRK-123")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDispatched, out.Order.Status.Phase)
	assert.Equal(t, "TRK-123", *out.Order.TrackingCode)

	pickup := f.inPreparation(t, id, 1, domain.DeliveryModePickup)
	out, err = f.svc.Dispatch(context.Background(), pickup.ID, "ignored")
	require.NoError(t, err)
	assert.Equal(t, PickupTrackingCode, *out.Order.TrackingCode)
}

func TestDispatch_ConcurrentClicksDispatchOnce(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.inPreparation(t, id, 1, domain.DeliveryModePickup)

	const clicks = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Dispatch(context.Background(), o.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			if _, ok := errors.IsInvalidTransitionError(err); ok {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, clicks-1, rejected)
	dispatched := 0
	for _, k := range f.notifier.kinds() {
		if k == domain.MessageDispatched {
			dispatched++
		}
	}
	assert.Equal(t, 1, dispatched)
}

func TestDispatch_DeliveryFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.inPreparation(t, id, 1, domain.DeliveryModePickup)
	f.notifier.err = stderrors.New("smtp down")

	out, err := f.svc.Dispatch(context.Background(), o.ID, "")
	require.NoError(t, err)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "smtp down")
	assert.Equal(t, domain.PhaseDispatched, f.order(t, o.ID).Status.Phase)
}

func TestRaiseException_NonShortageDeduplicates(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	first, err := f.svc.RaiseException(context.Background(), o.ID, domain.CategoryTransferPendingReview, "check the bank")
	require.NoError(t, err)
	second, err := f.svc.RaiseException(context.Background(), o.ID, domain.CategoryTransferPendingReview, "check again")
	require.NoError(t, err)
	assert.Equal(t, first.Notification.ID, second.Notification.ID)
	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, second.Order.Status.Phase)

	_, err = f.svc.RaiseException(context.Background(), 999, domain.CategoryTransferPendingReview, "")
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)

	_, err = f.svc.RaiseException(context.Background(), o.ID, domain.Category("OTHER"), "")
	_, ok = errors.IsValidationError(err)
	assert.True(t, ok)
}

func TestTargetRole(t *testing.T) {
	assert.Equal(t, domain.RoleLogistics, TargetRole(domain.CategoryReservationRequest))
	assert.Equal(t, domain.RoleCustomerSupport, TargetRole(domain.CategoryShortageAlert))
	assert.Equal(t, domain.RoleCustomerSupport, TargetRole(domain.CategoryTransferPendingReview))
	assert.Equal(t, domain.RoleCustomerSupport, TargetRole(domain.CategoryReservationAvailable))
}

// Query Tests

func TestQueues_AndCounters(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)

	paidFirst := f.paid(t, id, 1, domain.DeliveryModePickup)
	paidSecond := f.paid(t, id, 1, domain.DeliveryModePickup)
	pending := f.awaitingPayment(t, id, 1, domain.DeliveryModePickup)
	_, err := f.svc.SelectBankTransfer(context.Background(), pending.ID, customer)
	require.NoError(t, err)

	logistics, err := f.svc.ListForRole(context.Background(), domain.RoleLogistics)
	require.NoError(t, err)
	require.Len(t, logistics, 2)
	assert.Equal(t, paidFirst.ID, logistics[0].ID)
	assert.Equal(t, paidSecond.ID, logistics[1].ID)

	support, err := f.svc.ListForRole(context.Background(), domain.RoleCustomerSupport)
	require.NoError(t, err)
	require.Len(t, support, 1)
	assert.Equal(t, pending.ID, support[0].ID)

	counters, err := f.svc.Counters(context.Background(), domain.RoleCustomerSupport)
	require.NoError(t, err)
	assert.Equal(t, Counters{Orders: 1, Notifications: 1}, *counters)

	_, err = f.svc.ListForRole(context.Background(), domain.RoleCustomer)
	_, ok := errors.IsValidationError(err)
	assert.True(t, ok)
}

func TestDispatchHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)

	empty, err := f.svc.DispatchHistory(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	a := f.inPreparation(t, id, 1, domain.DeliveryModePickup)
	b := f.inPreparation(t, id, 1, domain.DeliveryModePickup)
	for _, o := range []*domain.Order{a, b} {
		_, err := f.svc.Dispatch(context.Background(), o.ID, "")
		require.NoError(t, err)
	}

	history, err := f.svc.DispatchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, b.ID, history[0].ID)
}

func TestGetForCustomer_HidesOtherCustomers(t *testing.T) {
	f := newFixture(t)
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	got, err := f.svc.GetForCustomer(context.Background(), o.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetForCustomer(context.Background(), o.ID, "intruder")
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestTotals_StayConsistent(t *testing.T) {
	f := newFixture(t)
	id := f.product(20, 7000)
	policy := f.svc.cfg.Shipping

	orders := []*domain.Order{
		f.paid(t, id, 1, domain.DeliveryModeDelivery),
		f.paid(t, id, 4, domain.DeliveryModeDelivery),
		f.paid(t, id, 2, domain.DeliveryModePickup),
	}
	for _, o := range orders {
		stored := f.order(t, o.ID)
		subtotal := stored.Subtotal()
		want := subtotal.Add(policy.FeeFor(stored.Status.DeliveryMode, subtotal))
		assert.True(t, stored.Total.Equal(want), "order %d total %s, want %s", o.ID, stored.Total, want)
	}
}

// Retry Tests

// deadlockingTx fails the first n units of work with a DeadlockError.
type deadlockingTx struct {
	storage.TxManager
	mu        sync.Mutex
	remaining int
	calls     int
}

func (d *deadlockingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	d.mu.Lock()
	d.calls++
	fail := d.remaining > 0
	if fail {
		d.remaining--
	}
	d.mu.Unlock()
	if fail {
		return errors.WrapDeadlockError(stderrors.New("Error 1213: Deadlock found when trying to get lock"))
	}
	return d.TxManager.WithinTx(ctx, fn)
}

func TestTransition_RetriesDeadlock(t *testing.T) {
	var flaky *deadlockingTx
	f := newFixtureWithTx(t, func(inner storage.TxManager) storage.TxManager {
		flaky = &deadlockingTx{TxManager: inner}
		return flaky
	})
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	flaky.remaining = 2
	flaky.calls = 0
	out, err := f.svc.ChooseShipping(context.Background(), o.ID, customer, domain.DeliveryModePickup)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwaitingPayment, out.Order.Status.Phase)
	assert.Equal(t, 3, flaky.calls)
}

func TestTransition_GivesUpAfterMaxAttempts(t *testing.T) {
	var flaky *deadlockingTx
	f := newFixtureWithTx(t, func(inner storage.TxManager) storage.TxManager {
		flaky = &deadlockingTx{TxManager: inner}
		return flaky
	})
	id := f.product(10, 1000)
	o := f.create(t, id, 1)

	flaky.remaining = 5
	flaky.calls = 0
	_, err := f.svc.ChooseShipping(context.Background(), o.ID, customer, domain.DeliveryModePickup)
	_, ok := errors.IsDeadlockError(err)
	require.True(t, ok)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, domain.PhaseAwaitingShipmentChoice, f.order(t, o.ID).Status.Phase)
}
