package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/averix/storefront-checkout/internal/domain/cart"
	"github.com/averix/storefront-checkout/internal/domain/coupon"
	"github.com/averix/storefront-checkout/internal/domain/order"
	"github.com/averix/storefront-checkout/internal/domain/product"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

// --- Mocks ---

type mockCatalog struct {
	byID map[string]product.Product
}

func newCatalog(products ...product.Product) *mockCatalog {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{byID: byID}
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCartRepo struct {
	byUser map[string]*cart.Cart
}

func newCartRepo(carts ...*cart.Cart) *mockCartRepo {
	m := &mockCartRepo{byUser: make(map[string]*cart.Cart)}
	for _, c := range carts {
		m.byUser[c.UserID] = c
	}
	return m
}

func (m *mockCartRepo) Get(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := m.byUser[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *mockCartRepo) Delete(_ context.Context, userID string) error {
	delete(m.byUser, userID)
	return nil
}

type mockCouponStore struct {
	mu       sync.Mutex
	coupons  map[string]*coupon.Coupon
	userUses map[string]int
}

func newCouponStore(coupons ...*coupon.Coupon) *mockCouponStore {
	byCode := make(map[string]*coupon.Coupon, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}
	return &mockCouponStore{coupons: byCode, userUses: make(map[string]int)}
}

func (m *mockCouponStore) FindActiveByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok || !c.Active {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCouponStore) UserUses(_ context.Context, code, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userUses[code+"|"+userID], nil
}

// memCommitter is an in-memory Committer with the same conditional-update
// semantics as the Postgres implementation: it validates every mutation under
// one lock, then applies all of them or none.
type memCommitter struct {
	mu           sync.Mutex
	stock        map[string]int
	sold         map[string]int
	couponLimits map[string]int // total cap per code, 0 = unlimited
	perUserLimit map[string]int
	couponUsed   map[string]int
	userUses     map[string]int // code|user
	numbers      map[string]bool
	orders       []*order.Order
	deletedCarts map[string]bool
	failNumbers  int // fail the first N commits with ErrNumberConflict
}

func newCommitter(stock map[string]int) *memCommitter {
	return &memCommitter{
		stock:        stock,
		sold:         make(map[string]int),
		couponLimits: make(map[string]int),
		perUserLimit: make(map[string]int),
		couponUsed:   make(map[string]int),
		userUses:     make(map[string]int),
		numbers:      make(map[string]bool),
		deletedCarts: make(map[string]bool),
	}
}

func (m *memCommitter) addCoupon(code string, totalLimit, perUser int) {
	m.couponLimits[code] = totalLimit
	m.perUserLimit[code] = perUser
}

func (m *memCommitter) Commit(_ context.Context, c Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNumbers > 0 {
		m.failNumbers--
		return order.ErrNumberConflict
	}
	if m.numbers[c.Order.Number] {
		return order.ErrNumberConflict
	}
	for _, dec := range c.Stock {
		if m.stock[dec.ProductID] < dec.Quantity {
			return &StockConflictError{ProductID: dec.ProductID}
		}
	}
	if c.Coupon != nil {
		if limit := m.couponLimits[c.Coupon.Code]; limit > 0 && m.couponUsed[c.Coupon.Code] >= limit {
			return coupon.ErrUsageExhausted
		}
		key := c.Coupon.Code + "|" + c.Coupon.UserID
		if m.userUses[key] >= m.perUserLimit[c.Coupon.Code] {
			return coupon.ErrAlreadyUsed
		}
	}

	// All conditions hold; apply everything.
	m.numbers[c.Order.Number] = true
	for _, dec := range c.Stock {
		m.stock[dec.ProductID] -= dec.Quantity
		m.sold[dec.ProductID] += dec.Quantity
	}
	if c.Coupon != nil {
		m.couponUsed[c.Coupon.Code]++
		m.userUses[c.Coupon.Code+"|"+c.Coupon.UserID]++
	}
	m.orders = append(m.orders, c.Order)
	m.deletedCarts[c.CartUserID] = true
	return nil
}

// --- Helpers ---

func widget(stock int) product.Product {
	return product.Product{
		ID:           "p1",
		Name:         "Widget",
		Slug:         "widget",
		Image:        "widget.jpg",
		RegularPrice: d("10.00"),
		Stock:        stock,
		Active:       true,
	}
}

func cartOf(userID string, lines ...cart.Line) *cart.Cart {
	return &cart.Cart{UserID: userID, Lines: lines}
}

func line(productID string, price string, qty int) cart.Line {
	return cart.Line{ProductID: productID, Price: ptr(d(price)), Quantity: qty}
}

func checkoutReq(userID string) Request {
	return Request{
		UserID: userID,
		ShippingAddress: order.ShippingAddress{
			Street:     "12 Baker St",
			City:       "London",
			Country:    "UK",
			PostalCode: "NW1",
		},
		Phone: "+44 20 7946 0000",
	}
}

func seqNumbers(prefix string) order.NumberGenerator {
	n := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%06d", prefix, n)
	}
}

func newService(carts cart.Repository, catalog product.Catalog, store coupon.Store, cm Committer) *Service {
	return NewService(carts, catalog, coupon.NewEvaluator(store), cm, seqNumbers("ORD-2026"))
}

// --- Tests ---

func TestCheckout_NoCoupon(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2))),
		newCatalog(widget(10)),
		newCouponStore(),
		cm,
	)

	o, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.NoError(t, err)

	assert.True(t, d("20.00").Equal(o.TotalAmount), "got %s", o.TotalAmount)
	assert.Nil(t, o.AppliedCoupon)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 8, cm.stock["p1"])
	assert.Equal(t, 2, cm.sold["p1"])
	assert.True(t, cm.deletedCarts["u1"])
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].Name)
}

func TestCheckout_WithPercentCoupon(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	cm.addCoupon("SAVE10", 0, 1)
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2))),
		newCatalog(widget(10)),
		newCouponStore(&coupon.Coupon{
			Code:              "SAVE10",
			Type:              coupon.TypePercent,
			Value:             d("10"),
			MinOrderAmount:    ptr(d("15")),
			UsageLimitPerUser: 1,
			Active:            true,
		}),
		cm,
	)

	req := checkoutReq("u1")
	req.CouponCode = "SAVE10"

	o, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, o.AppliedCoupon)
	assert.Equal(t, "SAVE10", o.AppliedCoupon.Code)
	assert.True(t, d("2.00").Equal(o.AppliedCoupon.DiscountAmount))
	assert.True(t, d("18.00").Equal(o.TotalAmount))
	assert.Equal(t, 1, cm.couponUsed["SAVE10"])
	assert.Equal(t, 1, cm.userUses["SAVE10|u1"])
}

func TestCheckout_MinimumOrderNotMet(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2))),
		newCatalog(widget(10)),
		newCouponStore(&coupon.Coupon{
			Code:              "SAVE10",
			Type:              coupon.TypePercent,
			Value:             d("10"),
			MinOrderAmount:    ptr(d("25")),
			UsageLimitPerUser: 1,
			Active:            true,
		}),
		cm,
	)

	req := checkoutReq("u1")
	req.CouponCode = "SAVE10"

	_, err := svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, coupon.ErrMinimumOrderNotMet)

	// No side effects.
	assert.Empty(t, cm.orders)
	assert.Equal(t, 10, cm.stock["p1"])
	assert.False(t, cm.deletedCarts["u1"])
}

func TestCheckout_InvalidCouponDegradesToNoDiscount(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2))),
		newCatalog(widget(10)),
		newCouponStore(), // code does not exist
		cm,
	)

	req := checkoutReq("u1")
	req.CouponCode = "GHOST"

	o, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, o.AppliedCoupon)
	assert.True(t, d("20.00").Equal(o.TotalAmount))
}

func TestCheckout_OutOfStock(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 3})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 5))),
		newCatalog(widget(3)),
		newCouponStore(),
		cm,
	)

	_, err := svc.Checkout(context.Background(), checkoutReq("u1"))

	var oosErr *OutOfStockError
	require.ErrorAs(t, err, &oosErr)
	assert.Equal(t, 3, oosErr.Available)
	assert.Equal(t, 5, oosErr.Requested)
	assert.Equal(t, "Widget", oosErr.Name)

	assert.Empty(t, cm.orders)
	assert.Equal(t, 3, cm.stock["p1"])
}

func TestCheckout_ProductGone(t *testing.T) {
	cm := newCommitter(map[string]int{})
	svc := newService(
		newCartRepo(cartOf("u1", line("vanished", "10.00", 1))),
		newCatalog(),
		newCouponStore(),
		cm,
	)

	_, err := svc.Checkout(context.Background(), checkoutReq("u1"))

	var puErr *ProductUnavailableError
	require.ErrorAs(t, err, &puErr)
	assert.Equal(t, "vanished", puErr.ProductID)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := newService(newCartRepo(), newCatalog(), newCouponStore(), newCommitter(nil))

	_, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.ErrorIs(t, err, ErrEmptyCart)

	svc = newService(newCartRepo(cartOf("u1")), newCatalog(), newCouponStore(), newCommitter(nil))

	_, err = svc.Checkout(context.Background(), checkoutReq("u1"))
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_ShippingRequired(t *testing.T) {
	svc := newService(newCartRepo(), newCatalog(), newCouponStore(), newCommitter(nil))

	req := checkoutReq("u1")
	req.Phone = ""
	_, err := svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrShippingRequired)

	req = checkoutReq("u1")
	req.ShippingAddress.Street = ""
	_, err = svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrShippingRequired)
}

func TestCheckout_SnapshotPriceHonored(t *testing.T) {
	// Live sale price is 7.50 (25% off 10.00), but the cart snapshot says
	// 10.00. The snapshot wins.
	p := widget(10)
	p.DiscountPercent = 25

	cm := newCommitter(map[string]int{"p1": 10})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 1))),
		newCatalog(p),
		newCouponStore(),
		cm,
	)

	o, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.NoError(t, err)
	assert.True(t, d("10.00").Equal(o.TotalAmount))
}

func TestCheckout_MissingSnapshotFallsBackToSalePrice(t *testing.T) {
	p := widget(10)
	p.DiscountPercent = 25

	cm := newCommitter(map[string]int{"p1": 10})
	svc := newService(
		newCartRepo(cartOf("u1", cart.Line{ProductID: "p1", Quantity: 2})),
		newCatalog(p),
		newCouponStore(),
		cm,
	)

	o, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.NoError(t, err)
	assert.True(t, d("15.00").Equal(o.TotalAmount), "got %s", o.TotalAmount)
	assert.Equal(t, "Widget", o.Items[0].Name)
	assert.Equal(t, "widget", o.Items[0].Slug)
}

func TestCheckout_AtomicOnStockConflict(t *testing.T) {
	// The advisory check passes (catalog says 5), but by commit time only 1
	// unit is left. The whole commit must roll back: no order, no decrement
	// of the other line, cart intact.
	p2 := product.Product{ID: "p2", Name: "Gadget", Slug: "gadget", RegularPrice: d("20.00"), Stock: 5, Active: true}

	cm := newCommitter(map[string]int{"p1": 10, "p2": 1})
	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2), line("p2", "20.00", 3))),
		newCatalog(widget(10), p2),
		newCouponStore(),
		cm,
	)

	_, err := svc.Checkout(context.Background(), checkoutReq("u1"))

	var scErr *StockConflictError
	require.ErrorAs(t, err, &scErr)
	assert.Equal(t, "p2", scErr.ProductID)

	assert.Empty(t, cm.orders)
	assert.Equal(t, 10, cm.stock["p1"])
	assert.Equal(t, 1, cm.stock["p2"])
	assert.False(t, cm.deletedCarts["u1"])
}

func TestCheckout_NumberCollisionRetriedOnce(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	cm.failNumbers = 1

	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 1))),
		newCatalog(widget(10)),
		newCouponStore(),
		cm,
	)

	o, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.NoError(t, err)
	// The second generated number was used.
	assert.Equal(t, "ORD-2026-000002", o.Number)
	require.Len(t, cm.orders, 1)
}

func TestCheckout_NumberCollisionSurfacedAfterRetry(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 10})
	cm.failNumbers = 2

	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 1))),
		newCatalog(widget(10)),
		newCouponStore(),
		cm,
	)

	_, err := svc.Checkout(context.Background(), checkoutReq("u1"))
	require.ErrorIs(t, err, order.ErrNumberConflict)
	assert.Empty(t, cm.orders)
}

// Stock invariant under concurrency: with S units available, committed
// decrements never exceed S, and oversubscribed checkouts fail.
func TestCheckout_ConcurrentOversell(t *testing.T) {
	const stock = 5
	const buyers = 12

	cm := newCommitter(map[string]int{"p1": stock})

	carts := make([]*cart.Cart, buyers)
	for i := range buyers {
		carts[i] = cartOf(fmt.Sprintf("u%d", i), line("p1", "10.00", 1))
	}
	svc := newService(newCartRepo(carts...), newCatalog(widget(stock)), newCouponStore(), cm)

	var g errgroup.Group
	results := make([]error, buyers)
	for i := range buyers {
		g.Go(func() error {
			_, err := svc.Checkout(context.Background(), checkoutReq(fmt.Sprintf("u%d", i)))
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, conflicts int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		var scErr *StockConflictError
		var oosErr *OutOfStockError
		if errors.As(err, &scErr) || errors.As(err, &oosErr) {
			conflicts++
		}
	}

	assert.Equal(t, stock, ok, "exactly S checkouts may succeed")
	assert.Equal(t, buyers-stock, conflicts)
	assert.Equal(t, 0, cm.stock["p1"])
	assert.Equal(t, stock, cm.sold["p1"])
	assert.Len(t, cm.orders, stock)
}

// Coupon cap invariant under concurrency: used_count never exceeds the total
// limit even when every buyer passes the advisory evaluation on stale reads.
func TestCheckout_ConcurrentCouponCap(t *testing.T) {
	const limit = 3
	const buyers = 8

	cm := newCommitter(map[string]int{"p1": 100})
	cm.addCoupon("CAPPED", limit, 1)

	store := newCouponStore(&coupon.Coupon{
		Code:              "CAPPED",
		Type:              coupon.TypeFixed,
		Value:             d("5"),
		UsageLimitTotal:   limit,
		UsageLimitPerUser: 1,
		Active:            true,
	})

	carts := make([]*cart.Cart, buyers)
	for i := range buyers {
		carts[i] = cartOf(fmt.Sprintf("u%d", i), line("p1", "10.00", 1))
	}
	svc := newService(newCartRepo(carts...), newCatalog(widget(100)), store, cm)

	var g errgroup.Group
	for i := range buyers {
		g.Go(func() error {
			req := checkoutReq(fmt.Sprintf("u%d", i))
			req.CouponCode = "CAPPED"
			_, err := svc.Checkout(context.Background(), req)
			// Losers of the cap race surface a conflict; that is expected.
			if err != nil && !errors.Is(err, coupon.ErrUsageExhausted) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, limit, cm.couponUsed["CAPPED"], "used count never exceeds the cap")
	assert.Len(t, cm.orders, limit)
}

// A user at the per-user cap cannot redeem again even when the advisory read
// was stale.
func TestCheckout_PerUserCapAtCommit(t *testing.T) {
	cm := newCommitter(map[string]int{"p1": 100})
	cm.addCoupon("ONCE", 0, 1)
	cm.userUses["ONCE|u1"] = 1 // already redeemed, but the store below is stale

	svc := newService(
		newCartRepo(cartOf("u1", line("p1", "10.00", 2))),
		newCatalog(widget(100)),
		newCouponStore(&coupon.Coupon{
			Code:              "ONCE",
			Type:              coupon.TypeFixed,
			Value:             d("5"),
			UsageLimitPerUser: 1,
			Active:            true,
		}),
		cm,
	)

	req := checkoutReq("u1")
	req.CouponCode = "ONCE"

	_, err := svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.Empty(t, cm.orders)
	assert.Equal(t, 100, cm.stock["p1"])
}

func TestPreviewCoupon(t *testing.T) {
	store := newCouponStore(&coupon.Coupon{
		Code:              "SAVE10",
		Title:             "10% off",
		Type:              coupon.TypePercent,
		Value:             d("10"),
		MinOrderAmount:    ptr(d("15")),
		UsageLimitPerUser: 1,
		Active:            true,
	})
	svc := newService(newCartRepo(), newCatalog(), store, newCommitter(nil))

	preview, err := svc.PreviewCoupon(context.Background(), "u1", "save10", d("20.00"))
	require.NoError(t, err)
	assert.True(t, d("2.00").Equal(preview.Applied.DiscountAmount))
	assert.True(t, d("18.00").Equal(preview.FinalTotal))
	assert.Equal(t, "10% off", preview.Applied.Title)
}

func TestPreviewCoupon_RejectsExplicitly(t *testing.T) {
	svc := newService(newCartRepo(), newCatalog(), newCouponStore(), newCommitter(nil))

	_, err := svc.PreviewCoupon(context.Background(), "u1", "GHOST", d("20.00"))
	require.ErrorIs(t, err, coupon.ErrNotFound)
}
