package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipdoor/tipdoor/internal/domain/auth"
	"github.com/tipdoor/tipdoor/internal/domain/cart"
	"github.com/tipdoor/tipdoor/internal/domain/delivery"
	"github.com/tipdoor/tipdoor/internal/domain/order"
	"github.com/tipdoor/tipdoor/internal/domain/product"
	"github.com/tipdoor/tipdoor/internal/domain/promotion"
)

const testPepper = "test-pepper"

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hashKey(raw string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// In-memory repositories backing the real domain services.

type memProducts struct {
	products map[string]*product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) Search(_ context.Context, _ string) ([]product.Product, error) {
	return m.List(context.Background())
}

func (m *memProducts) LatestArrivals(_ context.Context, _ int) ([]product.Product, error) {
	return m.List(context.Background())
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	if p.ID == "" {
		p.ID = "prod-" + p.SKU
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memProducts) OwnedByVendor(_ context.Context, vendorID string, productIDs []string) (bool, error) {
	for _, id := range productIDs {
		p, ok := m.products[id]
		if !ok || p.VendorID != vendorID {
			return false, nil
		}
	}
	return true, nil
}

type memCarts struct {
	carts map[string]*cart.Cart
	items map[string][]cart.Item

	products *memProducts
}

func (m *memCarts) ownerKey(o cart.Owner) string {
	if o.CustomerID != "" {
		return "c:" + o.CustomerID
	}
	return "s:" + o.SessionKey
}

func (m *memCarts) GetOrCreate(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	k := m.ownerKey(owner)
	if c, ok := m.carts[k]; ok {
		return c, nil
	}
	c := &cart.Cart{ID: "cart-" + k, CustomerID: owner.CustomerID, SessionKey: owner.SessionKey}
	m.carts[k] = c
	return c, nil
}

func (m *memCarts) Lines(_ context.Context, cartID string) ([]cart.Line, error) {
	var lines []cart.Line
	for _, item := range m.items[cartID] {
		lines = append(lines, cart.Line{Item: item, Product: *m.products.products[item.ProductID]})
	}
	return lines, nil
}

func (m *memCarts) AddItem(_ context.Context, cartID, productID string, quantity int) error {
	for i, item := range m.items[cartID] {
		if item.ProductID == productID {
			m.items[cartID][i].Quantity += quantity
			return nil
		}
	}
	m.items[cartID] = append(m.items[cartID], cart.Item{
		ID:        "item-" + productID,
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	})
	return nil
}

func (m *memCarts) UpdateItemQuantity(_ context.Context, cartID, itemID string, quantity int) error {
	for i, item := range m.items[cartID] {
		if item.ID == itemID {
			m.items[cartID][i].Quantity = quantity
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (m *memCarts) RemoveItem(_ context.Context, cartID, itemID string) error {
	items := m.items[cartID]
	for i, item := range items {
		if item.ID == itemID {
			m.items[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

// memOrders implements both order.Repository and order.CheckoutStore,
// the way the postgres repository does.
type memOrders struct {
	carts  *memCarts
	orders map[string]*order.Order
}

func (m *memOrders) Checkout(ctx context.Context, owner cart.Owner, assemble order.AssembleFunc) (*order.Order, error) {
	c, err := m.carts.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	lines, err := m.carts.Lines(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	o, err := assemble(lines)
	if err != nil {
		return nil, err
	}

	m.orders[o.ID] = o
	m.carts.items[c.ID] = nil
	return o, nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) ListContainingVendor(_ context.Context, vendorID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if m.orderHasVendor(o, vendorID) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) orderHasVendor(o *order.Order, vendorID string) bool {
	for _, item := range o.Items {
		if p, ok := m.carts.products.products[item.ProductID]; ok && p.VendorID == vendorID {
			return true
		}
	}
	return false
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *memOrders) VendorOwnsItem(_ context.Context, orderID, vendorID string) (bool, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	return m.orderHasVendor(o, vendorID), nil
}

type memPromotions struct {
	byCode map[string]*promotion.Promotion
}

func (m *memPromotions) FindActiveByCode(_ context.Context, code string, now time.Time) (*promotion.Promotion, error) {
	p, ok := m.byCode[code]
	if !ok || !p.ActiveAt(now) {
		return nil, promotion.ErrNotFound
	}
	return p, nil
}

func (m *memPromotions) Create(_ context.Context, p *promotion.Promotion) error {
	m.byCode[p.Code] = p
	return nil
}

func (m *memPromotions) ListByVendor(_ context.Context, vendorID string) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	for _, p := range m.byCode {
		if p.VendorID == vendorID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memDeliveries struct {
	partners    map[string]*delivery.Partner
	assignments map[string]*delivery.Assignment
}

func (m *memDeliveries) FindCandidates(_ context.Context, _ string) ([]delivery.Partner, error) {
	return nil, nil
}

func (m *memDeliveries) GetPartner(_ context.Context, id string) (*delivery.Partner, error) {
	p, ok := m.partners[id]
	if !ok {
		return nil, delivery.ErrPartnerNotFound
	}
	return p, nil
}

func (m *memDeliveries) CreateAssignment(_ context.Context, a *delivery.Assignment) error {
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *memDeliveries) GetAssignment(_ context.Context, id string) (*delivery.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, delivery.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memDeliveries) ListAssignmentsByPartner(_ context.Context, partnerID string) ([]delivery.Assignment, error) {
	var out []delivery.Assignment
	for _, a := range m.assignments {
		if a.PartnerID == partnerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memDeliveries) UpdateAssignmentStatus(_ context.Context, id string, status delivery.AssignmentStatus) error {
	a, ok := m.assignments[id]
	if !ok {
		return delivery.ErrAssignmentNotFound
	}
	a.Status = status
	return nil
}

type memAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *memAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

// fixture wires a full API over in-memory state with one vendor, one
// customer, one partner, two products, and a SAVE10 promotion.
type fixture struct {
	mux    *http.ServeMux
	orders *memOrders
}

const (
	customerKey = "customer-key"
	vendorKey   = "vendor-key"
	partnerKey  = "partner-key"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &memProducts{products: map[string]*product.Product{
		"p1": {ID: "p1", VendorID: "vendor-1", Name: "Espresso Machine", Price: dec("50.00"), SKU: "ESP-001", Stock: 10},
		"p2": {ID: "p2", VendorID: "vendor-2", Name: "Brew Scale", Price: dec("30.00"), SKU: "SCL-004", Stock: 3},
	}}
	carts := &memCarts{
		carts:    make(map[string]*cart.Cart),
		items:    make(map[string][]cart.Item),
		products: products,
	}
	orders := &memOrders{carts: carts, orders: make(map[string]*order.Order)}
	promos := &memPromotions{byCode: map[string]*promotion.Promotion{
		"SAVE10": {
			ID:                 "promo-1",
			VendorID:           "vendor-1",
			Code:               "SAVE10",
			DiscountType:       promotion.DiscountPercentage,
			DiscountValue:      dec("10"),
			ApplicableProducts: []string{"p1"},
			StartDate:          time.Now().Add(-time.Hour),
			EndDate:            time.Now().Add(time.Hour),
			Active:             true,
		},
	}}
	deliveries := &memDeliveries{
		partners:    map[string]*delivery.Partner{"partner-1": {ID: "partner-1", Name: "Rider"}},
		assignments: make(map[string]*delivery.Assignment),
	}
	apikeys := &memAPIKeys{byHash: map[string]*auth.APIKeyInfo{
		hashKey(customerKey): {ID: "k1", KeyHash: hashKey(customerKey), ActorType: auth.ActorCustomer, ActorID: "cust-1"},
		hashKey(vendorKey):   {ID: "k2", KeyHash: hashKey(vendorKey), ActorType: auth.ActorVendor, ActorID: "vendor-1"},
		hashKey(partnerKey):  {ID: "k3", KeyHash: hashKey(partnerKey), ActorType: auth.ActorPartner, ActorID: "partner-1"},
	}}

	h := NewHandler(
		products,
		cart.NewService(carts, products),
		order.NewService(orders, orders, promos, nil),
		promotion.NewService(promos, products),
		delivery.NewService(deliveries, orders),
		NewSecurity(apikeys, []byte(testPepper)),
	)

	mux := http.NewServeMux()
	h.Routes(mux)

	return &fixture{mux: mux, orders: orders}
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/cart/items", customerKey, addCartItemRequest{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/cart/items", customerKey, addCartItemRequest{ProductID: "p2", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)
}

func checkoutBody(promoCode string) createOrderRequest {
	var req createOrderRequest
	req.ShippingAddress = addressPayload{
		Street: "1 Market St", City: "Springfield", PostalCode: "12345", Country: "US",
	}
	req.PromoCode = promoCode
	return req
}

func TestPublicCatalog(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]productResponse](t, w), 2)

	w = f.do(t, http.MethodGet, "/api/products/p2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decodeBody[productResponse](t, w)
	assert.Equal(t, "LOW_STOCK", p.Status)

	w = f.do(t, http.MethodGet, "/api/products/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateProduct_RequiresVendorKey(t *testing.T) {
	f := newFixture(t)
	body := createProductRequest{Name: "Kettle", Price: dec("54.99"), SKU: "KTL-003", Stock: 5}

	w := f.do(t, http.MethodPost, "/api/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/products", customerKey, body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/products", vendorKey, body)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[productResponse](t, w)
	assert.Equal(t, "vendor-1", created.VendorID)
}

func TestCartFlow_SessionOwner(t *testing.T) {
	f := newFixture(t)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("X-Session-Key", "anon-42")
		w := httptest.NewRecorder()
		f.mux.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/api/cart/items", addCartItemRequest{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	// Re-adding merges into one line.
	w = do(http.MethodPost, "/api/cart/items", addCartItemRequest{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeBody[cartResponse](t, w)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.True(t, dec("150.00").Equal(view.Subtotal))

	itemID := view.Lines[0].ItemID

	w = do(http.MethodPatch, "/api/cart/items/"+itemID, updateCartItemRequest{Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeBody[cartResponse](t, w)
	assert.Equal(t, 1, view.Lines[0].Quantity)

	w = do(http.MethodDelete, "/api/cart/items/"+itemID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[cartResponse](t, w).Lines)
}

func TestCart_NoIdentity(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody("SAVE10"))
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[createOrderResponse](t, w)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "SAVE10", resp.PromoCode)
	assert.True(t, dec("130.00").Equal(resp.TotalAmount), "got %s", resp.TotalAmount)
	assert.True(t, dec("120.00").Equal(resp.DiscountedTotal), "got %s", resp.DiscountedTotal)
	require.Len(t, resp.Items, 2)

	// The cart is consumed by checkout.
	w = f.do(t, http.MethodGet, "/api/cart", customerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[cartResponse](t, w).Lines)

	// A second submit finds nothing to order.
	w = f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody(""))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_IncompleteAddress(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	body := checkoutBody("")
	body.ShippingAddress.City = ""

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The failed attempt leaves the cart intact.
	w = f.do(t, http.MethodGet, "/api/cart", customerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[cartResponse](t, w).Lines, 2)
}

func TestCheckout_UnknownPromo(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody("NOPE"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderStatusWorkflow(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody(""))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody[createOrderResponse](t, w).ID

	// Vendors with items in the order may move it; the status parses
	// case-insensitively.
	w = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/status", vendorKey, updateOrderStatusRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "APPROVED", decodeBody[orderResponse](t, w).Status)

	// CANCELLED is only reachable from PENDING.
	w = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/status", vendorKey, updateOrderStatusRequest{Status: "CANCELLED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders/"+orderID+"/status", vendorKey, updateOrderStatusRequest{Status: "SHIPPED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderVisibility(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody(""))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody[createOrderResponse](t, w).ID

	w = f.do(t, http.MethodGet, "/api/orders/"+orderID, customerKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/orders", customerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]orderResponse](t, w), 1)

	// The vendor listing includes orders containing its products.
	w = f.do(t, http.MethodGet, "/api/orders", vendorKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]orderResponse](t, w), 1)
}

func TestAssignmentFlow(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	w := f.do(t, http.MethodPost, "/api/orders", customerKey, checkoutBody(""))
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody[createOrderResponse](t, w).ID

	w = f.do(t, http.MethodPost, "/api/assignments", vendorKey, assignOrderRequest{OrderID: orderID, PartnerID: "partner-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	a := decodeBody[assignmentResponse](t, w)
	assert.Equal(t, "ASSIGNED", a.Status)

	// Assignment moves the order itself to ASSIGNED.
	stored, err := f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAssigned, stored.Status)

	w = f.do(t, http.MethodGet, "/api/assignments", partnerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]assignmentResponse](t, w), 1)

	w = f.do(t, http.MethodPost, "/api/assignments/"+a.ID+"/status", partnerKey, updateAssignmentStatusRequest{Status: "delivered"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DELIVERED", decodeBody[assignmentResponse](t, w).Status)

	stored, err = f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, stored.Status)

	// Delivered is terminal.
	w = f.do(t, http.MethodPost, "/api/assignments/"+a.ID+"/status", partnerKey, updateAssignmentStatusRequest{Status: "ASSIGNED"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSecurity_BadKey(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeBody[errorResponse](t, w)
	assert.Equal(t, http.StatusUnauthorized, body.Code)
}
