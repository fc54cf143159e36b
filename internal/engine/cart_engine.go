package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

// defaultGuestPrice is the placeholder unit price used when a guest add
// carries no price and the availability lookup yields nothing.
var defaultGuestPrice = decimal.NewFromInt(1000)

const defaultCartStaleAfter = time.Minute

// AddItemRequest describes one add-to-cart action. Quantity zero means one.
// Product, Pharmacy and UnitPrice are optional denormalized data; in guest
// mode missing fields are enriched from the availability feed and fall back
// to placeholders, never failing the add.
type AddItemRequest struct {
	ProductID  string
	PharmacyID string
	Quantity   int

	Product   *domain.ProductSnapshot
	Pharmacy  *domain.PharmacySnapshot
	UnitPrice *domain.Money
}

// MergeResult reports one item's outcome from the merge protocol.
type MergeResult struct {
	Item domain.CartItem
	Err  error
}

type CartEngineConfig struct {
	Store        port.CartStore
	Remote       port.CartService
	Availability port.AvailabilityService
	Session      port.Session

	Logger     *slog.Logger
	Clock      Clock
	StaleAfter time.Duration
}

// CartEngine owns the cart entity. It backs onto the durable guest store
// while unauthenticated and onto the server cart once a session exists, and
// runs the merge protocol on the guest-to-authenticated transition.
//
// All access to the in-memory snapshot goes through the engine; callers
// only ever see cloned snapshots.
type CartEngine struct {
	store        port.CartStore
	remote       port.CartService
	availability port.AvailabilityService
	session      port.Session
	logger       *slog.Logger
	clock        Clock
	staleAfter   time.Duration

	// opMu serializes whole operations, the merge included, so a user
	// action mid-merge queues behind it instead of interleaving.
	opMu sync.Mutex

	mu              sync.Mutex
	local           []domain.CartItem
	remoteItems     []domain.CartItem
	remoteFetchedAt time.Time
	gen             int
	nextSub         int
	subs            map[int]func(domain.Cart)

	// mergePending keeps the guest items as the visible source of truth
	// from the login transition until the post-merge refetch lands, so the
	// user never observes an empty cart mid-merge.
	mergePending bool

	unsubSession func()
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewCartEngine(ctx context.Context, cfg CartEngineConfig) (*CartEngine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote is nil")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultCartStaleAfter
	}

	local, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("store.Load: %w", err)
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	e := &CartEngine{
		store:        cfg.Store,
		remote:       cfg.Remote,
		availability: cfg.Availability,
		session:      cfg.Session,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		staleAfter:   cfg.StaleAfter,
		local:        local,
		subs:         make(map[int]func(domain.Cart)),
		ctx:          engineCtx,
		cancel:       cancel,
	}

	e.unsubSession = cfg.Session.Subscribe(e.onSessionChange)

	// A session restored from a previous run still owes the guest cart a
	// merge; the login transition happened before this process started.
	if cfg.Session.Authenticated() {
		e.mu.Lock()
		e.mergePending = true
		e.mu.Unlock()
		e.spawnMerge()
	}

	return e, nil
}

// Close stops background work and detaches from the session signal.
func (e *CartEngine) Close() {
	e.cancel()
	e.unsubSession()
	e.wg.Wait()
}

// Snapshot returns the current derived cart view for the active mode. It is
// consistent even mid-mutation: totals always match the returned items. While
// a merge is pending the guest items are still the view; the server cart
// takes over only once the post-merge refetch confirms its content.
func (e *CartEngine) Snapshot() domain.Cart {
	authenticated := e.session.Authenticated()

	e.mu.Lock()
	defer e.mu.Unlock()

	if authenticated && !e.mergePending {
		return domain.BuildCart(e.remoteItems)
	}
	return domain.BuildCart(e.local)
}

// Load returns a snapshot, refetching the server cart first when the cached
// copy is older than the freshness window. Guest mode never hits the network.
func (e *CartEngine) Load(ctx context.Context) (domain.Cart, error) {
	if e.session.Authenticated() {
		e.mu.Lock()
		stale := e.clock.Now().Sub(e.remoteFetchedAt) >= e.staleAfter
		e.mu.Unlock()

		if stale {
			if err := e.Refresh(ctx); err != nil {
				return domain.Cart{}, fmt.Errorf("refresh: %w", err)
			}
		}
	}
	return e.Snapshot(), nil
}

// Refresh refetches the server cart unconditionally. A no-op without a
// session.
func (e *CartEngine) Refresh(ctx context.Context) error {
	if !e.session.Authenticated() {
		return nil
	}
	if err := e.refetchRemote(ctx); err != nil {
		return err
	}
	e.emit()
	return nil
}

// Subscribe registers fn to receive an immutable snapshot after every
// mutation. The returned func removes the subscription.
func (e *CartEngine) Subscribe(fn func(domain.Cart)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// AddItem appends or merges one item into the active cart. Failures leave
// the cart exactly as it was.
func (e *CartEngine) AddItem(ctx context.Context, req AddItemRequest) error {
	if req.ProductID == "" || req.PharmacyID == "" {
		return fmt.Errorf("product or pharmacy id is empty: %w", domain.ErrValidation)
	}
	if req.Quantity < 0 {
		return fmt.Errorf("quantity[%d] is negative: %w", req.Quantity, domain.ErrValidation)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.session.Authenticated() {
		if _, err := e.remote.AddItem(ctx, req.ProductID, req.PharmacyID, req.Quantity); err != nil {
			return fmt.Errorf("remote.AddItem: %w", err)
		}
		if err := e.refetchRemote(ctx); err != nil {
			e.logger.Warn("cart refetch after add failed", "error", err)
		}
		e.emit()
		return nil
	}

	return e.addLocal(ctx, req)
}

func (e *CartEngine) addLocal(ctx context.Context, req AddItemRequest) error {
	e.mu.Lock()
	items := domain.CloneItems(e.local)
	e.mu.Unlock()

	if idx := domain.FindByPair(items, req.ProductID, req.PharmacyID); idx >= 0 {
		items[idx].Quantity += req.Quantity
	} else {
		items = append(items, e.synthesizeItem(ctx, req))
	}

	if err := e.store.Save(ctx, items); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	e.commitLocal(items)
	return nil
}

// synthesizeItem builds a guest item, enriching missing price and display
// data from the availability feed. Enrichment is best-effort: lookup
// failures are logged and placeholders used instead.
func (e *CartEngine) synthesizeItem(ctx context.Context, req AddItemRequest) domain.CartItem {
	price := domain.NewMoney(defaultGuestPrice)
	pharmacyName := ""

	if req.UnitPrice == nil || req.Product == nil || req.Pharmacy == nil {
		if offer, ok := e.lookupOffer(ctx, req.ProductID, req.PharmacyID); ok {
			pharmacyName = offer.PharmacyName
			// A zero offer price means the pharmacy has not priced the
			// product; the placeholder price stands in.
			if !offer.Price.IsZero() {
				price = offer.Price
			}
		}
	}
	if req.UnitPrice != nil {
		price = *req.UnitPrice
	}

	product := domain.ProductSnapshot{ID: req.ProductID, Name: domain.PlaceholderProductName}
	if req.Product != nil {
		product = *req.Product
		product.ID = req.ProductID
	}

	pharmacy := domain.PharmacySnapshot{ID: req.PharmacyID, Name: pharmacyName}
	if pharmacy.Name == "" {
		pharmacy.Name = domain.PlaceholderPharmacyName
	}
	if req.Pharmacy != nil {
		pharmacy = *req.Pharmacy
		pharmacy.ID = req.PharmacyID
	}

	return domain.CartItem{
		ID:         domain.NewLocalItemID(),
		ProductID:  req.ProductID,
		PharmacyID: req.PharmacyID,
		Quantity:   req.Quantity,
		UnitPrice:  price,
		Product:    product,
		Pharmacy:   pharmacy,
		CreatedAt:  e.clock.Now(),
	}
}

func (e *CartEngine) lookupOffer(ctx context.Context, productID, pharmacyID string) (port.Availability, bool) {
	if e.availability == nil {
		return port.Availability{}, false
	}

	offers, err := e.availability.Availability(ctx, productID)
	if err != nil {
		e.logger.Warn("availability lookup failed", "product_id", productID, "error", err)
		return port.Availability{}, false
	}

	for _, offer := range offers {
		if offer.PharmacyID == pharmacyID {
			return offer, true
		}
	}
	return port.Availability{}, false
}

// UpdateQuantity sets an item's quantity exactly. A quantity below one is
// equivalent to RemoveItem.
func (e *CartEngine) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if itemID == "" {
		return fmt.Errorf("itemID is empty: %w", domain.ErrValidation)
	}
	if quantity < 1 {
		return e.RemoveItem(ctx, itemID)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.session.Authenticated() {
		if _, err := e.remote.UpdateItem(ctx, itemID, quantity); err != nil {
			return fmt.Errorf("remote.UpdateItem: %w", err)
		}
		if err := e.refetchRemote(ctx); err != nil {
			e.logger.Warn("cart refetch after update failed", "error", err)
		}
		e.emit()
		return nil
	}

	e.mu.Lock()
	items := domain.CloneItems(e.local)
	e.mu.Unlock()

	idx := domain.FindByID(items, itemID)
	if idx < 0 {
		// Gone already; treated as a no-op in guest mode.
		return nil
	}
	items[idx].Quantity = quantity

	if err := e.store.Save(ctx, items); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	e.commitLocal(items)
	return nil
}

// RemoveItem deletes an item. Removing an id the guest cart no longer has
// is a no-op success.
func (e *CartEngine) RemoveItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("itemID is empty: %w", domain.ErrValidation)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.session.Authenticated() {
		if err := e.remote.RemoveItem(ctx, itemID); err != nil {
			return fmt.Errorf("remote.RemoveItem: %w", err)
		}
		if err := e.refetchRemote(ctx); err != nil {
			e.logger.Warn("cart refetch after remove failed", "error", err)
		}
		e.emit()
		return nil
	}

	e.mu.Lock()
	items := domain.CloneItems(e.local)
	e.mu.Unlock()

	idx := domain.FindByID(items, itemID)
	if idx < 0 {
		return nil
	}
	items = append(items[:idx], items[idx+1:]...)

	if err := e.store.Save(ctx, items); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	e.commitLocal(items)
	return nil
}

// Clear empties the active cart. In guest mode the durable store entry is
// purged as well.
func (e *CartEngine) Clear(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.session.Authenticated() {
		if err := e.remote.Clear(ctx); err != nil {
			return fmt.Errorf("remote.Clear: %w", err)
		}
		if err := e.refetchRemote(ctx); err != nil {
			e.logger.Warn("cart refetch after clear failed", "error", err)
		}
		e.emit()
		return nil
	}

	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("store.Clear: %w", err)
	}

	e.commitLocal([]domain.CartItem{})
	return nil
}

// SyncLocal runs the merge protocol: every guest item is added to the
// server cart best-effort, one result per item; only after all attempts
// complete is the guest store cleared and the server cart refetched. The
// guest cart stays visible until then, so the user never observes an empty
// cart mid-merge.
func (e *CartEngine) SyncLocal(ctx context.Context) ([]MergeResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.session.Authenticated() {
		return nil, fmt.Errorf("merge without session: %w", domain.ErrAuthRequired)
	}

	e.mu.Lock()
	items := domain.CloneItems(e.local)
	e.mu.Unlock()

	if len(items) == 0 {
		// Nothing to carry over; the server cart becomes the view either way.
		e.settleMerge()
		if err := e.refetchRemote(ctx); err != nil {
			return nil, fmt.Errorf("refetchRemote: %w", err)
		}
		e.emit()
		return nil, nil
	}

	results := make([]MergeResult, 0, len(items))
	for _, item := range items {
		_, err := e.remote.AddItem(ctx, item.ProductID, item.PharmacyID, item.Quantity)
		if err != nil {
			e.logger.Warn("merge of cart item failed",
				"product_id", item.ProductID, "pharmacy_id", item.PharmacyID, "error", err)
		}
		results = append(results, MergeResult{Item: item, Err: err})
	}

	// Logout mid-merge: keep the guest cart, drop the in-flight results.
	if !e.session.Authenticated() {
		return results, fmt.Errorf("session lost during merge: %w", domain.ErrAuthRequired)
	}

	// On a failed clear the guest store still holds the items, so the guest
	// view stays the visible truth.
	if err := e.store.Clear(ctx); err != nil {
		return results, fmt.Errorf("store.Clear: %w", err)
	}

	e.mu.Lock()
	e.local = []domain.CartItem{}
	e.mu.Unlock()

	if err := e.refetchRemote(ctx); err != nil {
		e.logger.Warn("cart refetch after merge failed", "error", err)
	}
	e.settleMerge()
	e.emit()

	return results, nil
}

// settleMerge hands the view over to the server cart.
func (e *CartEngine) settleMerge() {
	e.mu.Lock()
	e.mergePending = false
	e.mu.Unlock()
}

func (e *CartEngine) refetchRemote(ctx context.Context) error {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()

	items, err := e.remote.GetItems(ctx)
	if err != nil {
		return fmt.Errorf("remote.GetItems: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A logout while the fetch was in flight invalidates the result.
	if gen != e.gen {
		return nil
	}
	e.remoteItems = items
	e.remoteFetchedAt = e.clock.Now()
	return nil
}

func (e *CartEngine) commitLocal(items []domain.CartItem) {
	e.mu.Lock()
	e.local = items
	e.mu.Unlock()
	e.emit()
}

func (e *CartEngine) onSessionChange(authenticated bool) {
	if authenticated {
		e.mu.Lock()
		e.mergePending = true
		e.mu.Unlock()
		e.spawnMerge()
		return
	}

	e.mu.Lock()
	e.gen++
	e.remoteItems = nil
	e.remoteFetchedAt = time.Time{}
	e.mergePending = false
	e.mu.Unlock()
	e.emit()
}

func (e *CartEngine) spawnMerge() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.SyncLocal(e.ctx); err != nil {
			e.logger.Error("cart merge failed", "error", err)
		}
	}()
}

func (e *CartEngine) emit() {
	authenticated := e.session.Authenticated()

	e.mu.Lock()
	var snapshot domain.Cart
	if authenticated && !e.mergePending {
		snapshot = domain.BuildCart(e.remoteItems)
	} else {
		snapshot = domain.BuildCart(e.local)
	}
	fns := make([]func(domain.Cart), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
