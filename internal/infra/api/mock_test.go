//go:build !integration

package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/infra/security"
	"course-entitlement/internal/usecase"
)

type fakeConfirmUC struct {
	gotCaller string
	gotReq    usecase.ConfirmRequest
	res       *usecase.ConfirmResult
	err       error
}

func (f *fakeConfirmUC) Confirm(ctx context.Context, callerID string, req usecase.ConfirmRequest) (*usecase.ConfirmResult, error) {
	f.gotCaller, f.gotReq = callerID, req
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &usecase.ConfirmResult{OrderID: req.OrderID, Entitlement: model.Entitlement{AccountID: callerID, Tier: model.TierFree}}, nil
}

func (f *fakeConfirmUC) Settle(ctx context.Context, st usecase.Settlement) (*usecase.ConfirmResult, error) {
	return nil, nil
}

type fakeAccountUC struct {
	gotCaller string
	gotArgs   []string
	err       error
}

func (f *fakeAccountUC) ent(caller string) (*model.Entitlement, error) {
	f.gotCaller = caller
	if f.err != nil {
		return nil, f.err
	}
	return &model.Entitlement{AccountID: caller, Tier: model.TierBasic}, nil
}

func (f *fakeAccountUC) GetEntitlement(ctx context.Context, callerID string) (*model.Entitlement, error) {
	return f.ent(callerID)
}

func (f *fakeAccountUC) RegisterBillingCredential(ctx context.Context, callerID, credential string) (*model.Entitlement, error) {
	f.gotArgs = []string{credential}
	return f.ent(callerID)
}

func (f *fakeAccountUC) CancelAutoRenewal(ctx context.Context, callerID string) (*model.Entitlement, error) {
	return f.ent(callerID)
}

func (f *fakeAccountUC) ListPurchases(ctx context.Context, callerID string) ([]*model.PurchaseRecord, error) {
	f.gotCaller = callerID
	if f.err != nil {
		return nil, f.err
	}
	return []*model.PurchaseRecord{{OrderID: "order-1", AccountID: callerID, ProductID: "basic_30", Amount: 9900, Status: model.PurchaseStatusPaid, Channel: model.ChannelCard}}, nil
}

func (f *fakeAccountUC) CreateUnlockIntent(ctx context.Context, callerID, resourceID, productID string) (*model.UnlockIntent, error) {
	f.gotCaller, f.gotArgs = callerID, []string{resourceID, productID}
	if f.err != nil {
		return nil, f.err
	}
	return &model.UnlockIntent{ID: "intent-1", AccountID: callerID, ResourceID: resourceID, ProductID: productID, Status: model.IntentStatusPending}, nil
}

type fakeRefundUC struct {
	gotActor string
	gotArgs  []string
	err      error
}

func (f *fakeRefundUC) out(status model.RefundStatus) (*model.RefundRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.RefundRequest{ID: "r-1", PaymentID: "order-1", Status: status}, nil
}

func (f *fakeRefundUC) Submit(ctx context.Context, callerID, paymentID, reason string) (*model.RefundRequest, error) {
	f.gotActor, f.gotArgs = callerID, []string{paymentID, reason}
	return f.out(model.RefundStatusPending)
}

func (f *fakeRefundUC) Approve(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error) {
	f.gotActor, f.gotArgs = adminID, []string{refundID, note}
	return f.out(model.RefundStatusApproved)
}

func (f *fakeRefundUC) Reject(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error) {
	f.gotActor, f.gotArgs = adminID, []string{refundID, note}
	return f.out(model.RefundStatusRejected)
}

func (f *fakeRefundUC) ListPending(ctx context.Context, limit int) ([]*model.RefundRequest, error) {
	f.gotArgs = nil
	if f.err != nil {
		return nil, f.err
	}
	return []*model.RefundRequest{{ID: "r-1", Status: model.RefundStatusPending}}, nil
}

type fakeWebhookUC struct {
	calls int
	got   *model.PlatformEvent
	out   usecase.WebhookOutcome
	err   error
}

func (f *fakeWebhookUC) HandlePlatformEvent(ctx context.Context, ev *model.PlatformEvent) (usecase.WebhookOutcome, error) {
	f.calls++
	f.got = ev
	if f.err != nil {
		return "", f.err
	}
	if f.out == "" {
		return usecase.WebhookApplied, nil
	}
	return f.out, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type testEnv struct {
	confirm  *fakeConfirmUC
	account  *fakeAccountUC
	refund   *fakeRefundUC
	webhook  *fakeWebhookUC
	limiter  *fakeLimiter
	identity *security.IdentityResolver
	handler  http.Handler
}

const webhookSecret = "whsec_test"

func newTestEnv() *testEnv {
	l := zerolog.New(io.Discard)
	env := &testEnv{
		confirm:  &fakeConfirmUC{},
		account:  &fakeAccountUC{},
		refund:   &fakeRefundUC{},
		webhook:  &fakeWebhookUC{},
		limiter:  &fakeLimiter{allow: true},
		identity: security.NewIdentityResolver("jwt-secret", "course-entitlement"),
	}
	srv := NewServer(env.confirm, env.account, env.refund, env.webhook, env.identity, env.limiter,
		Options{WebhookSecret: webhookSecret, ConfirmRateLimit: 5}, &l)
	env.handler = srv.Routes()
	return env
}

func (e *testEnv) token(accountID string, admin bool) string {
	tok, err := e.identity.Mint(accountID, admin, time.Hour)
	if err != nil {
		panic(err)
	}
	return "Bearer " + tok
}
