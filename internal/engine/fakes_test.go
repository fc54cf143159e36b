package engine_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSession struct {
	mu            sync.Mutex
	authenticated bool
	nextSub       int
	subs          map[int]func(bool)
}

func newFakeSession(authenticated bool) *fakeSession {
	return &fakeSession{
		authenticated: authenticated,
		subs:          make(map[int]func(bool)),
	}
}

func (s *fakeSession) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *fakeSession) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// set flips the signal and notifies subscribers, like a real login/logout.
func (s *fakeSession) set(authenticated bool) {
	s.mu.Lock()
	if s.authenticated == authenticated {
		s.mu.Unlock()
		return
	}
	s.authenticated = authenticated
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}
}

// setSilent flips the signal without notifying, for driving engine methods
// deterministically in tests.
func (s *fakeSession) setSilent(authenticated bool) {
	s.mu.Lock()
	s.authenticated = authenticated
	s.mu.Unlock()
}

type fakeStore struct {
	mu       sync.Mutex
	items    []domain.CartItem
	saveErr  error
	clearErr error
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) Load(context.Context) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items), nil
}

func (s *fakeStore) Save(_ context.Context, items []domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.items = domain.CloneItems(items)
	s.saves++
	return nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.items = nil
	return nil
}

func (s *fakeStore) snapshot() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// fakeCartService mimics the server cart: it assigns ids and merges adds
// for an existing (product, pharmacy) pair.
type fakeCartService struct {
	mu        sync.Mutex
	items     []domain.CartItem
	nextID    int
	addErrFor map[string]error
	getErr    error
	updateErr error
	clearErr  error
	addCalls  int
	getCalls  int

	// addEntered/addRelease, when set before use, make AddItem signal its
	// entry and wait to be released, to hold a merge open mid-flight.
	addEntered chan struct{}
	addRelease chan struct{}
}

func newFakeCartService() *fakeCartService {
	return &fakeCartService{addErrFor: make(map[string]error)}
}

func (f *fakeCartService) GetItems(context.Context) ([]domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return domain.CloneItems(f.items), nil
}

func (f *fakeCartService) AddItem(_ context.Context, productID, pharmacyID string, quantity int) (domain.CartItem, error) {
	if f.addEntered != nil {
		f.addEntered <- struct{}{}
		<-f.addRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.addCalls++
	if err := f.addErrFor[productID]; err != nil {
		return domain.CartItem{}, err
	}

	if idx := domain.FindByPair(f.items, productID, pharmacyID); idx >= 0 {
		f.items[idx].Quantity += quantity
		return f.items[idx], nil
	}

	f.nextID++
	item := domain.CartItem{
		ID:         fmt.Sprintf("srv-%d", f.nextID),
		ProductID:  productID,
		PharmacyID: pharmacyID,
		Quantity:   quantity,
		UnitPrice:  domain.NewMoney(decimal.NewFromInt(500)),
	}
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeCartService) UpdateItem(_ context.Context, itemID string, quantity int) (domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return domain.CartItem{}, f.updateErr
	}

	idx := domain.FindByID(f.items, itemID)
	if idx < 0 {
		return domain.CartItem{}, fmt.Errorf("item[%s]: %w", itemID, domain.ErrNotFound)
	}
	f.items[idx].Quantity = quantity
	return f.items[idx], nil
}

func (f *fakeCartService) RemoveItem(_ context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := domain.FindByID(f.items, itemID)
	if idx < 0 {
		return fmt.Errorf("item[%s]: %w", itemID, domain.ErrNotFound)
	}
	f.items = append(f.items[:idx], f.items[idx+1:]...)
	return nil
}

func (f *fakeCartService) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.items = nil
	return nil
}

func (f *fakeCartService) snapshot() []domain.CartItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CloneItems(f.items)
}

func (f *fakeCartService) snapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeCartService) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls
}

type fakeAvailability struct {
	mu     sync.Mutex
	offers map[string][]port.Availability
	err    error
	calls  int
}

func newFakeAvailability() *fakeAvailability {
	return &fakeAvailability{offers: make(map[string][]port.Availability)}
}

func (f *fakeAvailability) Availability(_ context.Context, productID string) ([]port.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.offers[productID], nil
}

type fakeNotificationService struct {
	mu           sync.Mutex
	list         []domain.Notification
	listErr      error
	markErr      error
	listCalls    int
	markCalls    []string
	markAllCalls int
	deleteCalls  int
	clearCalls   int
}

func newFakeNotificationService(list ...domain.Notification) *fakeNotificationService {
	return &fakeNotificationService{list: list}
}

func (f *fakeNotificationService) List(context.Context) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return domain.CloneNotifications(f.list), nil
}

func (f *fakeNotificationService) MarkAsRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, id)
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationService) MarkAllAsRead(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++
	for i := range f.list {
		f.list[i].IsRead = true
	}
	return nil
}

func (f *fakeNotificationService) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	for i := range f.list {
		if f.list[i].ID == id {
			f.list = append(f.list[:i], f.list[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeNotificationService) ClearAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.list = nil
	return nil
}

func (f *fakeNotificationService) snapshot() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.CloneNotifications(f.list)
}

func (f *fakeNotificationService) setList(list ...domain.Notification) {
	f.mu.Lock()
	f.list = list
	f.mu.Unlock()
}

func (f *fakeNotificationService) markedReads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markCalls...)
}

func (f *fakeNotificationService) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}
