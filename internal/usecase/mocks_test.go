//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/domain/ports/repository"
)

// memStore is an in-memory database shared by the mem* repositories. Its
// transaction manager serializes transactions and restores a snapshot when fn
// fails, which is enough to exercise commit/rollback and row-lock semantics.
type memStore struct {
	mu        sync.Mutex
	accounts  map[string]model.Account
	purchases map[string]model.PurchaseRecord
	grants    map[string]model.UnlockGrant
	intents   map[string]model.UnlockIntent
	refunds   map[string]model.RefundRequest
	usage     []usageEvent

	saveAccountErr error // used by tests to simulate a failure after the ledger insert
}

type usageEvent struct {
	accountID string
	kind      string // completed|unlocked|viewed
	at        time.Time
}

type memTx struct{}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[string]model.Account),
		purchases: make(map[string]model.PurchaseRecord),
		grants:    make(map[string]model.UnlockGrant),
		intents:   make(map[string]model.UnlockIntent),
		refunds:   make(map[string]model.RefundRequest),
	}
}

// lock takes the store lock unless tx says the caller already holds it.
func (s *memStore) lock(tx repository.Tx) func() {
	if _, ok := tx.(*memTx); ok {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type memSnapshot struct {
	accounts  map[string]model.Account
	purchases map[string]model.PurchaseRecord
	grants    map[string]model.UnlockGrant
	intents   map[string]model.UnlockIntent
	refunds   map[string]model.RefundRequest
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		accounts:  cloneMap(s.accounts),
		purchases: cloneMap(s.purchases),
		grants:    cloneMap(s.grants),
		intents:   cloneMap(s.intents),
		refunds:   cloneMap(s.refunds),
	}
}

func (s *memStore) restore(sn memSnapshot) {
	s.accounts = sn.accounts
	s.purchases = sn.purchases
	s.grants = sn.grants
	s.intents = sn.intents
	s.refunds = sn.refunds
}

// ---- test accessors ----

func (s *memStore) putAccount(a *model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
}

func (s *memStore) account(id string) model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) putPurchase(p *model.PurchaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[p.OrderID] = *p
}

func (s *memStore) purchase(orderID string) (model.PurchaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[orderID]
	return p, ok
}

func (s *memStore) purchaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.purchases)
}

func (s *memStore) putIntent(i *model.UnlockIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[i.ID] = *i
}

func (s *memStore) intent(id string) (model.UnlockIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.intents[id]
	return i, ok
}

func (s *memStore) refund(id string) model.RefundRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunds[id]
}

func (s *memStore) recordUsage(accountID, kind string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usageEvent{accountID: accountID, kind: kind, at: at})
}

// ---- TransactionManager ----

type memTxManager struct{ s *memStore }

var _ repository.TransactionManager = (*memTxManager)(nil)

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	// BeginTx fails on a finished context
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sn := m.s.snapshot()
	if err := fn(ctx, &memTx{}); err != nil {
		m.s.restore(sn)
		return err
	}
	return nil
}

// ---- AccountRepository ----

type memAccounts struct{ s *memStore }

var _ repository.AccountRepository = (*memAccounts)(nil)

func (r *memAccounts) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	defer r.s.lock(tx)()
	if _, ok := r.s.accounts[a.ID]; !ok {
		r.s.accounts[a.ID] = *a
	}
	return nil
}

func (r *memAccounts) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	defer r.s.lock(tx)()
	if r.s.saveAccountErr != nil {
		return r.s.saveAccountErr
	}
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *memAccounts) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	defer r.s.lock(tx)()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *memAccounts) ListRenewalDue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Account, error) {
	defer r.s.lock(tx)()
	var out []*model.Account
	for _, a := range r.s.accounts {
		a := a
		if a.AutoRenewalEnabled && a.HasBillingCredential() && !a.Withdrawn &&
			a.ExpiresAt != nil && !a.ExpiresAt.After(before) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- PurchaseRepository ----

type memPurchases struct{ s *memStore }

var _ repository.PurchaseRepository = (*memPurchases)(nil)

func (r *memPurchases) Insert(ctx context.Context, tx repository.Tx, p *model.PurchaseRecord) (bool, error) {
	defer r.s.lock(tx)()
	if _, ok := r.s.purchases[p.OrderID]; ok {
		return false, nil
	}
	r.s.purchases[p.OrderID] = *p
	return true, nil
}

func (r *memPurchases) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.PurchaseRecord, error) {
	defer r.s.lock(tx)()
	p, ok := r.s.purchases[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memPurchases) FindByExternalReference(ctx context.Context, tx repository.Tx, channel model.Channel, ref string) (*model.PurchaseRecord, error) {
	defer r.s.lock(tx)()
	for _, p := range r.s.purchases {
		if p.Channel == channel && p.ExternalReference == ref {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPurchases) MarkCancelled(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	defer r.s.lock(tx)()
	p, ok := r.s.purchases[orderID]
	if !ok || p.Status != model.PurchaseStatusPaid {
		return false, nil
	}
	p.Status = model.PurchaseStatusCancelled
	r.s.purchases[orderID] = p
	return true, nil
}

func (r *memPurchases) ListByAccount(ctx context.Context, tx repository.Tx, accountID string) ([]*model.PurchaseRecord, error) {
	defer r.s.lock(tx)()
	var out []*model.PurchaseRecord
	for _, p := range r.s.purchases {
		p := p
		if p.AccountID == accountID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovedAt.After(out[j].ApprovedAt) })
	return out, nil
}

func (r *memPurchases) DeleteApprovedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	defer r.s.lock(tx)()
	pending := make(map[string]bool)
	for _, rf := range r.s.refunds {
		if rf.Status == model.RefundStatusPending {
			pending[rf.PaymentID] = true
		}
	}
	var n int64
	for id, p := range r.s.purchases {
		if p.ApprovedAt.Before(cutoff) && !pending[id] {
			delete(r.s.purchases, id)
			n++
		}
	}
	return n, nil
}

// ---- UnlockRepository ----

type memUnlocks struct{ s *memStore }

var _ repository.UnlockRepository = (*memUnlocks)(nil)

func (r *memUnlocks) Grant(ctx context.Context, tx repository.Tx, g *model.UnlockGrant) error {
	defer r.s.lock(tx)()
	key := g.AccountID + "|" + g.ResourceID
	if _, ok := r.s.grants[key]; !ok {
		r.s.grants[key] = *g
	}
	return nil
}

func (r *memUnlocks) ListGrants(ctx context.Context, tx repository.Tx, accountID string) ([]*model.UnlockGrant, error) {
	defer r.s.lock(tx)()
	var out []*model.UnlockGrant
	for _, g := range r.s.grants {
		g := g
		if g.AccountID == accountID {
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out, nil
}

func (r *memUnlocks) SaveIntent(ctx context.Context, tx repository.Tx, i *model.UnlockIntent) error {
	defer r.s.lock(tx)()
	r.s.intents[i.ID] = *i
	return nil
}

func (r *memUnlocks) FindIntent(ctx context.Context, tx repository.Tx, id string) (*model.UnlockIntent, error) {
	defer r.s.lock(tx)()
	i, ok := r.s.intents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (r *memUnlocks) CompleteIntent(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	defer r.s.lock(tx)()
	i, ok := r.s.intents[id]
	if !ok || i.Status != model.IntentStatusPending {
		return false, nil
	}
	i.Status = model.IntentStatusCompleted
	r.s.intents[id] = i
	return true, nil
}

func (r *memUnlocks) DeleteStaleIntents(ctx context.Context, tx repository.Tx, pendingBefore, completedBefore time.Time) (int64, error) {
	defer r.s.lock(tx)()
	var n int64
	for id, i := range r.s.intents {
		stale := (i.Status == model.IntentStatusPending && i.CreatedAt.Before(pendingBefore)) ||
			(i.Status == model.IntentStatusCompleted && i.CreatedAt.Before(completedBefore))
		if stale {
			delete(r.s.intents, id)
			n++
		}
	}
	return n, nil
}

// ---- RefundRepository / UsageRepository ----

type memRefunds struct{ s *memStore }

var _ repository.RefundRepository = (*memRefunds)(nil)

func (r *memRefunds) Insert(ctx context.Context, tx repository.Tx, rf *model.RefundRequest) (bool, error) {
	defer r.s.lock(tx)()
	for _, existing := range r.s.refunds {
		if existing.PaymentID == rf.PaymentID {
			return false, nil
		}
	}
	r.s.refunds[rf.ID] = *rf
	return true, nil
}

func (r *memRefunds) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	defer r.s.lock(tx)()
	rf, ok := r.s.refunds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rf, nil
}

func (r *memRefunds) Resolve(ctx context.Context, tx repository.Tx, id string, status model.RefundStatus, processedAt time.Time, processedBy, note string) (bool, error) {
	defer r.s.lock(tx)()
	rf, ok := r.s.refunds[id]
	if !ok || rf.Status != model.RefundStatusPending {
		return false, nil
	}
	rf.Status = status
	rf.ProcessedAt = &processedAt
	rf.ProcessedBy = &processedBy
	if note != "" {
		rf.AdminNote = &note
	}
	r.s.refunds[id] = rf
	return true, nil
}

func (r *memRefunds) ListByStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, limit int) ([]*model.RefundRequest, error) {
	defer r.s.lock(tx)()
	var out []*model.RefundRequest
	for _, rf := range r.s.refunds {
		rf := rf
		if rf.Status == status {
			out = append(out, &rf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memUsage struct{ s *memStore }

var _ repository.UsageRepository = (*memUsage)(nil)

func (r *memUsage) CountSince(ctx context.Context, tx repository.Tx, accountID string, since time.Time) (model.UsageCounts, error) {
	defer r.s.lock(tx)()
	var c model.UsageCounts
	for _, e := range r.s.usage {
		if e.accountID != accountID || e.at.Before(since) {
			continue
		}
		switch e.kind {
		case "completed":
			c.Completed++
		case "unlocked":
			c.Unlocked++
		case "viewed":
			c.Viewed++
		}
	}
	return c, nil
}

// ---- Payment processor ----

type fakeProcessor struct {
	name string

	mu          sync.Mutex
	confirms    int
	charges     []string // order ids
	cancelKeys  []string
	ConfirmFunc func(ctx context.Context, proof adapter.PaymentProof) (adapter.Verification, error)
	ChargeFunc  func(ctx context.Context, credential string, amount int64, orderID string) (adapter.ChargeResult, error)
	CancelFunc  func(ctx context.Context, txID string, amount int64) error
}

var _ adapter.PaymentProcessor = (*fakeProcessor)(nil)

func newFakeProcessor(name string) *fakeProcessor { return &fakeProcessor{name: name} }

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) Confirm(ctx context.Context, proof adapter.PaymentProof) (adapter.Verification, error) {
	p.mu.Lock()
	p.confirms++
	fn := p.ConfirmFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, proof)
	}
	return adapter.Verification{TransactionID: "tx-" + proof.Token, Amount: proof.Amount, Method: "card"}, nil
}

func (p *fakeProcessor) Charge(ctx context.Context, credential string, amount int64, orderID, orderName string) (adapter.ChargeResult, error) {
	p.mu.Lock()
	p.charges = append(p.charges, orderID)
	fn := p.ChargeFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, credential, amount, orderID)
	}
	return adapter.ChargeResult{TransactionID: "tx-" + orderID}, nil
}

func (p *fakeProcessor) Cancel(ctx context.Context, transactionID string, amount int64, reason, idempotencyKey string) error {
	p.mu.Lock()
	p.cancelKeys = append(p.cancelKeys, idempotencyKey)
	fn := p.CancelFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, transactionID, amount)
	}
	return nil
}

func (p *fakeProcessor) confirmCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirms
}

// blockUntilDone simulates a processor that never answers.
func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// ---- Credential cipher ----

type fakeCipher struct{ failDecrypt bool }

var _ adapter.CredentialCipher = (*fakeCipher)(nil)

func (c *fakeCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (c *fakeCipher) Decrypt(s string) (string, error) {
	if c.failDecrypt || !strings.HasPrefix(s, "enc:") {
		return "", errors.New("cipher: message authentication failed")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

// ---- helpers ----

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func testCatalog() *model.Catalog {
	c, err := model.NewCatalog(append(model.DefaultProducts(),
		model.Product{ID: "basic_30", Name: "Basic 30d", Price: 9900, Kind: model.EffectSubscription, Tier: model.TierBasic, PeriodDays: 30},
		model.Product{ID: "premium_30", Name: "Premium 30d", Price: 19900, Kind: model.EffectSubscription, Tier: model.TierPremium, PeriodDays: 30},
		model.Product{ID: "unlock_course_42", Name: "Course 42", Price: 3900, Kind: model.EffectResourceUnlock, ResourceID: "course-42"},
	))
	if err != nil {
		panic(err)
	}
	return c
}

// fixedClock is a settable now() shared by the use cases under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv wires every use case over one memStore.
type testEnv struct {
	store     *memStore
	clock     *fixedClock
	catalog   *model.Catalog
	card      *fakeProcessor
	inApp     *fakeProcessor
	cipher    *fakeCipher
	accounts  *memAccounts
	purchases *memPurchases
	unlocks   *memUnlocks
	refunds   *memRefunds
	tm        *memTxManager

	confirm  *confirmUC
	refund   *refundUC
	clawback *clawbackUC
	account  *accountUC
	webhook  *webhookUC
	renewal  *renewalUC
}

func newTestEnv() *testEnv {
	s := newMemStore()
	e := &testEnv{
		store:     s,
		clock:     &fixedClock{t: t0},
		catalog:   testCatalog(),
		card:      newFakeProcessor("card"),
		inApp:     newFakeProcessor("store"),
		cipher:    &fakeCipher{},
		accounts:  &memAccounts{s: s},
		purchases: &memPurchases{s: s},
		unlocks:   &memUnlocks{s: s},
		refunds:   &memRefunds{s: s},
		tm:        &memTxManager{s: s},
	}
	log := newTestLogger()
	procs := Processors{model.ChannelCard: e.card, model.ChannelInApp: e.inApp}

	e.confirm = NewConfirmUseCase(e.catalog, procs, e.accounts, e.purchases, e.unlocks, e.tm, 50*time.Millisecond, 24*time.Hour, log)
	e.confirm.now = e.clock.Now
	e.refund = NewRefundUseCase(e.catalog, procs, e.accounts, e.purchases, e.refunds, &memUsage{s: s}, e.tm, 50*time.Millisecond, log)
	e.refund.now = e.clock.Now
	e.clawback = NewClawbackUseCase(e.catalog, e.accounts, e.purchases, e.tm, log)
	e.clawback.now = e.clock.Now
	e.account = NewAccountUseCase(e.catalog, e.accounts, e.purchases, e.unlocks, e.cipher, e.tm, false, log)
	e.account.now = e.clock.Now
	e.webhook = NewWebhookUseCase(e.catalog, e.confirm, e.clawback, log)
	e.renewal = NewRenewalUseCase(e.catalog, e.card, e.cipher, e.accounts, e.purchases, e.unlocks, e.tm, 24*time.Hour, 4, 100, 50*time.Millisecond, log)
	return e
}

// cardConfirm is a valid card confirmation of productID for accountID.
func cardConfirm(orderID, accountID, productID string) ConfirmRequest {
	return ConfirmRequest{
		Channel:   model.ChannelCard,
		OrderID:   orderID,
		Token:     "pk-" + orderID,
		AccountID: accountID,
		ProductID: productID,
	}
}
