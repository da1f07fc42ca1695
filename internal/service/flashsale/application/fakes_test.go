package application

import (
	"context"
	"sync"
	"time"

	"atelier/internal/service/flashsale/domain"
	"atelier/internal/service/flashsale/domain/port"
)

// memStore 是一套共享同一把锁的内存仓储，模拟数据库的事务隔离：
// WithinTx 持有大锁，等价于购买临界区里的行锁串行化。
type memStore struct {
	mu sync.Mutex

	sales  map[int64]*domain.Sale
	rsvs   map[int64]*domain.Reservation
	orders map[string]*domain.Order
	events []*domain.Event

	nextSaleID int64
	nextRsvID  int64
}

func newMemStore() *memStore {
	return &memStore{
		sales:  make(map[int64]*domain.Sale),
		rsvs:   make(map[int64]*domain.Reservation),
		orders: make(map[string]*domain.Order),
	}
}

func (s *memStore) putSale(sale *domain.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sale.ID == 0 {
		s.nextSaleID++
		sale.ID = s.nextSaleID
	}
	cp := *sale
	s.sales[sale.ID] = &cp
}

func (s *memStore) getSale(id int64) *domain.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sale, ok := s.sales[id]; ok {
		cp := *sale
		return &cp
	}
	return nil
}

func (s *memStore) getReservation(id int64) *domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rsvs[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *memStore) getOrder(code string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[code]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (s *memStore) eventTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		topics = append(topics, ev.Topic)
	}
	return topics
}

// memTxManager 用 txMu 串行化所有事务，模拟 FOR UPDATE 行锁。
type memTxManager struct {
	store *memStore
	txMu  sync.Mutex
}

func (m *memTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

type memSaleRepo struct{ store *memStore }

func (r *memSaleRepo) Create(_ context.Context, sale *domain.Sale) error {
	r.store.putSale(sale)
	return nil
}

func (r *memSaleRepo) Save(_ context.Context, sale *domain.Sale) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sales[sale.ID]; !ok {
		return domain.ErrSaleNotFound
	}
	cp := *sale
	r.store.sales[sale.ID] = &cp
	return nil
}

func (r *memSaleRepo) FindByID(_ context.Context, id int64) (*domain.Sale, error) {
	if sale := r.store.getSale(id); sale != nil {
		return sale, nil
	}
	return nil, domain.ErrSaleNotFound
}

func (r *memSaleRepo) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Sale, error) {
	return r.FindByID(ctx, id)
}

func (r *memSaleRepo) FindActive(_ context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.filter(func(s *domain.Sale) bool {
		return (s.Status == domain.SaleActive || s.Status == domain.SaleSoldOut) &&
			!now.Before(s.StartTime) && now.Before(s.EndTime)
	}), nil
}

func (r *memSaleRepo) FindUpcoming(_ context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.filter(func(s *domain.Sale) bool {
		return s.Status == domain.SaleScheduled && s.StartTime.After(now)
	}), nil
}

func (r *memSaleRepo) FindFeatured(_ context.Context, now time.Time) ([]*domain.Sale, error) {
	return r.filter(func(s *domain.Sale) bool {
		return s.IsFeatured && s.Status == domain.SaleActive &&
			!now.Before(s.StartTime) && now.Before(s.EndTime)
	}), nil
}

func (r *memSaleRepo) FindAll(_ context.Context, status domain.SaleStatus, _, _ int) ([]*domain.Sale, error) {
	return r.filter(func(s *domain.Sale) bool {
		return status == "" || s.Status == status
	}), nil
}

func (r *memSaleRepo) filter(keep func(*domain.Sale) bool) []*domain.Sale {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.Sale
	for _, s := range r.store.sales {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (r *memSaleRepo) ActivateDue(_ context.Context, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, s := range r.store.sales {
		if s.Status == domain.SaleScheduled && !now.Before(s.StartTime) && now.Before(s.EndTime) {
			s.Status = domain.SaleActive
			n++
		}
	}
	return n, nil
}

func (r *memSaleRepo) EndDue(_ context.Context, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, s := range r.store.sales {
		if (s.Status == domain.SaleActive || s.Status == domain.SaleSoldOut) && !now.Before(s.EndTime) {
			s.Status = domain.SaleEnded
			n++
		}
	}
	return n, nil
}

type memReservationRepo struct{ store *memStore }

func (r *memReservationRepo) Create(_ context.Context, rsv *domain.Reservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.nextRsvID++
	rsv.ID = r.store.nextRsvID
	cp := *rsv
	r.store.rsvs[rsv.ID] = &cp
	return nil
}

func (r *memReservationRepo) FindByID(_ context.Context, id int64) (*domain.Reservation, error) {
	if rsv := r.store.getReservation(id); rsv != nil {
		return rsv, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *memReservationRepo) FindActiveBySaleAndCustomer(_ context.Context, saleID, customerID int64) (*domain.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rsv := range r.store.rsvs {
		if rsv.SaleID == saleID && rsv.CustomerID == customerID && rsv.Status == domain.ReservationActive {
			cp := *rsv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memReservationRepo) FindExpired(_ context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.Reservation
	for _, rsv := range r.store.rsvs {
		if rsv.Status == domain.ReservationActive && now.After(rsv.ExpiresAt) {
			cp := *rsv
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memReservationRepo) TransitionFromActive(_ context.Context, id int64, to domain.ReservationStatus) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rsv, ok := r.store.rsvs[id]
	if !ok || rsv.Status != domain.ReservationActive {
		return false, nil
	}
	rsv.Status = to
	return true, nil
}

type memOrderRepo struct{ store *memStore }

func (r *memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order.ID = int64(len(r.store.orders) + 1)
	cp := *order
	r.store.orders[order.OrderCode] = &cp
	return nil
}

func (r *memOrderRepo) FindByCode(_ context.Context, code string) (*domain.Order, error) {
	if o := r.store.getOrder(code); o != nil {
		return o, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *memOrderRepo) FindByCustomer(_ context.Context, customerID, saleID int64, limit, _ int) ([]*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.store.orders {
		if o.CustomerID != customerID {
			continue
		}
		if saleID > 0 && o.SaleID != saleID {
			continue
		}
		cp := *o
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memOrderRepo) SumQuantityByCustomer(_ context.Context, saleID, customerID int64) (float64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var total float64
	for _, o := range r.store.orders {
		if o.SaleID == saleID && o.CustomerID == customerID && o.CountsTowardLimit() {
			total += o.Quantity
		}
	}
	return total, nil
}

func (r *memOrderRepo) TransitionFromPending(_ context.Context, code string, to domain.OrderStatus, paidAt *time.Time, method string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[code]
	if !ok || o.Status != domain.OrderPendingPayment {
		return false, nil
	}
	o.Status = to
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	if method != "" {
		o.PaymentMethod = method
	}
	return true, nil
}

func (r *memOrderRepo) FindOverduePending(_ context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.store.orders {
		if o.Status == domain.OrderPendingPayment && o.PaymentDeadline.Before(now) {
			cp := *o
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memPublisher struct{ store *memStore }

func (p *memPublisher) Append(_ context.Context, events ...*domain.Event) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.events = append(p.store.events, events...)
	return nil
}

// memLocker 用每个场次一把互斥锁模拟分布式锁。
type memLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[int64]*sync.Mutex)}
}

func (l *memLocker) Acquire(_ context.Context, saleID int64, _ time.Duration) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[saleID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[saleID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

// memStockGate 记录扣减与补偿，默认全部放行。
type memStockGate struct {
	mu       sync.Mutex
	reserves int
	releases int
	allow    bool
}

func newMemStockGate() *memStockGate { return &memStockGate{allow: true} }

func (g *memStockGate) TryReserve(_ context.Context, _ int64, _ float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.allow {
		return false, nil
	}
	g.reserves++
	return true, nil
}

func (g *memStockGate) Release(_ context.Context, _ int64, _ float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releases++
	return nil
}

func (g *memStockGate) Sync(_ context.Context, _ int64, _ float64) error { return nil }

func (g *memStockGate) releaseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releases
}

// countingStockGate 按余量严格扣减的预检闸，
// 用来验证库存归还路径都会把闸口计数补回来。
type countingStockGate struct {
	mu      sync.Mutex
	balance float64
}

func (g *countingStockGate) TryReserve(_ context.Context, _ int64, qty float64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balance < qty {
		return false, nil
	}
	g.balance -= qty
	return true, nil
}

func (g *countingStockGate) Release(_ context.Context, _ int64, qty float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance += qty
	return nil
}

func (g *countingStockGate) Sync(_ context.Context, _ int64, qty float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balance = qty
	return nil
}

func (g *countingStockGate) available() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

type memEligibility struct {
	evaluate func(port.CustomerProfile) bool
}

func (e *memEligibility) Evaluate(_ context.Context, _ string, profile port.CustomerProfile) (bool, error) {
	if e.evaluate == nil {
		return true, nil
	}
	return e.evaluate(profile), nil
}

func (e *memEligibility) Validate(string) error { return nil }

// fakeClock 可推进的测试时钟。
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
