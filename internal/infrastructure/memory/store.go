// Package memory is a single-process storage.TxManager. Each unit of work runs under one
// mutex against a private copy of the state, swapped in on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/storage"
)

type state struct {
	products           map[int]domain.Product
	orders             map[int64]*domain.Order
	notifications      map[int64]domain.Notification
	gatewayTokens      map[string]int64
	nextProductID      int
	nextOrderID        int64
	nextLineID         int64
	nextNotificationID int64
}

func newState() *state {
	return &state{
		products:      map[int]domain.Product{},
		orders:        map[int64]*domain.Order{},
		notifications: map[int64]domain.Notification{},
		gatewayTokens: map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.products = make(map[int]domain.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.orders = make(map[int64]*domain.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	c.notifications = make(map[int64]domain.Notification, len(s.notifications))
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	c.gatewayTokens = make(map[string]int64, len(s.gatewayTokens))
	for k, v := range s.gatewayTokens {
		c.gatewayTokens[k] = v
	}
	return &c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// AddProduct seeds the catalog and returns the assigned id when p.ID is zero.
func (s *Store) AddProduct(p domain.Product) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.st.nextProductID++
		p.ID = s.st.nextProductID
	} else if p.ID > s.st.nextProductID {
		s.st.nextProductID = p.ID
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.st.products[p.ID] = p
	return p.ID
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &view{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Reader() storage.Tx {
	return &view{store: s, now: s.now}
}

// view serves either a transaction (st set) or autocommit reads (store set).
type view struct {
	store *Store
	st    *state
	now   func() time.Time
}

func (v *view) with(fn func(st *state) error) error {
	if v.store != nil {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
		return fn(v.store.st)
	}
	return fn(v.st)
}

func (v *view) Products() storage.ProductRepository           { return productRepo{v} }
func (v *view) Orders() storage.OrderRepository               { return orderRepo{v} }
func (v *view) Notifications() storage.NotificationRepository { return notificationRepo{v} }

type productRepo struct{ v *view }

func (r productRepo) FindByID(ctx context.Context, id int) (*domain.Product, error) {
	var out *domain.Product
	err := r.v.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", id))
		}
		out = &p
		return nil
	})
	return out, err
}

func (r productRepo) FindByIDForUpdate(ctx context.Context, id int) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r productRepo) FindByIDs(ctx context.Context, ids []int) ([]domain.Product, error) {
	var out []domain.Product
	err := r.v.with(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r productRepo) DecrementStock(ctx context.Context, id int, quantity int) (bool, error) {
	var ok bool
	err := r.v.with(func(st *state) error {
		p, found := st.products[id]
		if !found || p.Stock < quantity {
			return nil
		}
		p.Stock -= quantity
		p.UpdatedAt = r.v.now()
		st.products[id] = p
		ok = true
		return nil
	})
	return ok, err
}

func (r productRepo) IncrementStock(ctx context.Context, id int, quantity int) error {
	return r.v.with(func(st *state) error {
		p, found := st.products[id]
		if !found {
			return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", id))
		}
		p.Stock += quantity
		p.UpdatedAt = r.v.now()
		st.products[id] = p
		return nil
	})
}

type orderRepo struct{ v *view }

func (r orderRepo) Insert(ctx context.Context, order *domain.Order) (int64, error) {
	err := r.v.with(func(st *state) error {
		if order.GatewayToken != nil {
			if _, taken := findByToken(st, *order.GatewayToken); taken {
				return apperrors.NewConflictError("gateway token already assigned")
			}
		}
		st.nextOrderID++
		order.ID = st.nextOrderID
		now := r.v.now()
		order.CreatedAt, order.UpdatedAt = now, now
		for i := range order.Lines {
			st.nextLineID++
			order.Lines[i].ID = st.nextLineID
			order.Lines[i].OrderID = order.ID
		}
		st.orders[order.ID] = order.Clone()
		keepToken(st, order)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (r orderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var out *domain.Order
	err := r.v.with(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("order with id %d not found", id))
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r orderRepo) FindByGatewayToken(ctx context.Context, token string) (*domain.Order, error) {
	var out *domain.Order
	err := r.v.with(func(st *state) error {
		o, ok := findByToken(st, token)
		if !ok {
			return apperrors.NewNotFoundError("no order holds the gateway token")
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

// findByToken resolves every token issued to an order, superseded ones included.
func findByToken(st *state, token string) (*domain.Order, bool) {
	id, ok := st.gatewayTokens[token]
	if !ok {
		return nil, false
	}
	o, ok := st.orders[id]
	return o, ok
}

func keepToken(st *state, order *domain.Order) {
	if order.GatewayToken != nil {
		st.gatewayTokens[*order.GatewayToken] = order.ID
	}
}

func (r orderRepo) Update(ctx context.Context, order *domain.Order, expected domain.Phase) error {
	return r.v.with(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok || current.Status.Phase != expected {
			return apperrors.NewConflictError(fmt.Sprintf("order %d is no longer in phase %s", order.ID, expected))
		}
		if order.GatewayToken != nil {
			if holder, taken := findByToken(st, *order.GatewayToken); taken && holder.ID != order.ID {
				return apperrors.NewConflictError("gateway token already assigned")
			}
		}
		updated := current.Clone()
		updated.Status = order.Status
		updated.StockCommitted = order.StockCommitted
		updated.Total = order.Total
		updated.TrackingCode = order.Clone().TrackingCode
		updated.GatewayToken = order.Clone().GatewayToken
		updated.UpdatedAt = r.v.now()
		st.orders[order.ID] = updated
		keepToken(st, updated)
		return nil
	})
}

func (r orderRepo) ListByPhases(ctx context.Context, phases []domain.Phase, newestFirst bool) ([]domain.Order, error) {
	wanted := make(map[domain.Phase]bool, len(phases))
	for _, p := range phases {
		wanted[p] = true
	}
	return r.list(newestFirst, func(o *domain.Order) bool { return wanted[o.Status.Phase] })
}

func (r orderRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.list(true, func(o *domain.Order) bool { return o.CustomerID == customerID })
}

func (r orderRepo) CountByPhases(ctx context.Context, phases []domain.Phase) (int, error) {
	orders, err := r.ListByPhases(ctx, phases, false)
	return len(orders), err
}

func (r orderRepo) list(newestFirst bool, keep func(o *domain.Order) bool) ([]domain.Order, error) {
	var out []domain.Order
	err := r.v.with(func(st *state) error {
		for _, o := range st.orders {
			if keep(o) {
				out = append(out, *o.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

type notificationRepo struct{ v *view }

func (r notificationRepo) Insert(ctx context.Context, n *domain.Notification) (int64, error) {
	err := r.v.with(func(st *state) error {
		if n.Status.Active() {
			for _, existing := range st.notifications {
				if existing.OrderID == n.OrderID && existing.Category == n.Category && existing.Status.Active() {
					return apperrors.NewConflictError(fmt.Sprintf("order %d already has an active %s notification", n.OrderID, n.Category))
				}
			}
		}
		st.nextNotificationID++
		n.ID = st.nextNotificationID
		now := r.v.now()
		n.CreatedAt, n.UpdatedAt = now, now
		st.notifications[n.ID] = *n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n.ID, nil
}

func (r notificationRepo) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var out *domain.Notification
	err := r.v.with(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("notification with id %d not found", id))
		}
		out = &n
		return nil
	})
	return out, err
}

func (r notificationRepo) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Notification, error) {
	return r.FindByID(ctx, id)
}

func (r notificationRepo) FindActive(ctx context.Context, orderID int64, category domain.Category) (*domain.Notification, error) {
	var out *domain.Notification
	err := r.v.with(func(st *state) error {
		for _, n := range st.notifications {
			if n.OrderID == orderID && n.Category == category && n.Status.Active() {
				found := n
				out = &found
				return nil
			}
		}
		return apperrors.NewNotFoundError(fmt.Sprintf("order %d has no active %s notification", orderID, category))
	})
	return out, err
}

func (r notificationRepo) UpdateStatus(ctx context.Context, id int64, status domain.NotificationStatus) error {
	return r.v.with(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("notification with id %d not found", id))
		}
		n.Status = status
		n.UpdatedAt = r.v.now()
		st.notifications[id] = n
		return nil
	})
}

func (r notificationRepo) ListOpenByRole(ctx context.Context, role domain.Role) ([]domain.Notification, error) {
	out, err := r.list(func(n domain.Notification) bool { return n.TargetRole == role && n.Status.Active() })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r notificationRepo) ListByOrder(ctx context.Context, orderID int64) ([]domain.Notification, error) {
	out, err := r.list(func(n domain.Notification) bool { return n.OrderID == orderID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r notificationRepo) CountOpenByRole(ctx context.Context, role domain.Role) (int, error) {
	out, err := r.list(func(n domain.Notification) bool {
		return n.TargetRole == role && n.Status == domain.NotificationOpen
	})
	return len(out), err
}

func (r notificationRepo) list(keep func(n domain.Notification) bool) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.v.with(func(st *state) error {
		for _, n := range st.notifications {
			if keep(n) {
				out = append(out, n)
			}
		}
		return nil
	})
	return out, err
}

var _ storage.TxManager = (*Store)(nil)
