package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartctx"
	"github.com/roach88/cartctx/internal/testutil"
)

// cliFixture runs commands against one store file and one fake backend.
type cliFixture struct {
	t      *testing.T
	fb     *testutil.FakeBackend
	db     string
	clock  *testutil.FakeClock
	suffix *testutil.SequenceGenerator
}

func newCLIFixture(t *testing.T) *cliFixture {
	return &cliFixture{
		t:      t,
		fb:     testutil.NewFakeBackend(t),
		db:     filepath.Join(t.TempDir(), "cli.db"),
		clock:  testutil.NewFakeClock(),
		suffix: testutil.NewSequenceGenerator("cli"),
	}
}

// run executes args and returns stdout and the command error.
func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	opts := &RootOptions{clientOpts: []cartctx.Option{
		cartctx.WithClock(f.clock),
		cartctx.WithSessionSuffix(f.suffix),
	}}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", f.db, "--base-url", f.fb.URL()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes args with --format json and decodes the response.
func (f *cliFixture) runJSON(args ...string) (CLIResponse, error) {
	f.t.Helper()
	out, err := f.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(f.t, json.Unmarshal([]byte(out), &resp), out)
	return resp, err
}

func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

const firstGuestSession = "sid_individual_1704067200000_cli00001"

func TestSessionShow_CreatesGuestSessionOnce(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Login type:    individual")
	assert.Contains(t, out, firstGuestSession)
	assert.Contains(t, out, "Authenticated: false")

	resp, err := f.runJSON("session", "show")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	data := dataMap(t, resp)
	assert.Equal(t, firstGuestSession, data["sessionId"])
	assert.Equal(t, "individual", data["loginType"])
	assert.NotContains(t, data, "notification")
}

func TestSessionMode_KeepsSessionsPerMode(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("session", "show")
	require.NoError(t, err)

	resp, err := f.runJSON("session", "mode", "business")
	require.NoError(t, err)
	biz := dataMap(t, resp)
	assert.Equal(t, "business", biz["loginType"])
	assert.True(t, strings.HasPrefix(biz["sessionId"].(string), "sid_business_"))

	resp, err = f.runJSON("session", "mode", "individual")
	require.NoError(t, err)
	assert.Equal(t, firstGuestSession, dataMap(t, resp)["sessionId"])
}

func TestSessionMode_RejectsUnknownType(t *testing.T) {
	f := newCLIFixture(t)

	resp, err := f.runJSON("session", "mode", "wholesale")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestSessionRotate_ReplacesSession(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("session", "show")
	require.NoError(t, err)

	resp, err := f.runJSON("session", "rotate")
	require.NoError(t, err)
	assert.Equal(t, "sid_individual_1704067200000_cli00002", dataMap(t, resp)["sessionId"])
}

func TestSessionAddress_SentWithCartFetch(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("session", "address", "addr_9")
	require.NoError(t, err)
	assert.Contains(t, out, "Address set")

	_, err = f.run("cart", "get")
	require.NoError(t, err)
	req, ok := f.fb.Last("GET /api/cart")
	require.True(t, ok)
	assert.Equal(t, "addr_9", req.Query.Get("addressId"))

	out, err = f.run("session", "address")
	require.NoError(t, err)
	assert.Contains(t, out, "Address cleared")

	_, err = f.run("cart", "get")
	require.NoError(t, err)
	req, _ = f.fb.Last("GET /api/cart")
	assert.False(t, req.Query.Has("addressId"))
}

func TestCartGet_Text(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("GET /api/cart", testutil.OK(map[string]any{
		"id": "cart_1",
		"items": []any{
			map[string]any{"productId": "p1", "variantId": "red", "quantity": 2, "price": 5.5},
		},
		"totals":     map[string]any{"totalPayable": 11},
		"couponCode": "SAVE10",
	}))

	out, err := f.run("cart", "get", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart cart_1")
	assert.Contains(t, out, "p1/red x2 @ 5.50")
	assert.Contains(t, out, "Coupon: SAVE10")
	assert.Contains(t, out, "Items: 2")
	assert.Contains(t, out, "Total payable: 11.00")

	req, ok := f.fb.Last("GET /api/cart")
	require.True(t, ok)
	assert.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
	assert.Equal(t, firstGuestSession, req.Query.Get("sessionId"))
	assert.Equal(t, "false", req.Query.Get("isNotificationCart"))
}

func TestCartAdd_ReportsAddedLine(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("GET /api/cart", testutil.OK(map[string]any{
		"id": "cart_1",
		"items": []any{
			map[string]any{"productId": "p1", "quantity": 1, "price": 2},
			map[string]any{"productId": "p1", "variantId": "blue", "quantity": 4, "price": 3},
		},
		"totals": map[string]any{"totalPayable": 14},
	}))

	out, err := f.run("cart", "add", "p1", "--qty", "3", "--variant", "blue")
	require.NoError(t, err)
	assert.Contains(t, out, "Added p1/blue (now x4)")
	assert.Contains(t, out, "Items: 5")
}

func TestCartAdd_PostsAndRefetches(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("cart", "add", "p1", "--qty", "3", "--variant", "blue")
	require.NoError(t, err)
	assert.Contains(t, out, "(empty)")

	req, ok := f.fb.Last("POST /api/cart/item")
	require.True(t, ok)
	body := req.BodyMap()
	assert.Equal(t, "p1", body["productId"])
	assert.Equal(t, "blue", body["variantId"])
	assert.Equal(t, json.Number("3"), body["quantity"])
	assert.Equal(t, firstGuestSession, body["sessionId"])
	assert.Equal(t, 1, f.fb.Count("GET /api/cart"))
}

func TestCartAdd_RejectsNonPositiveQuantity(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("cart", "add", "p1", "--qty", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, 0, f.fb.Count("POST /api/cart/item"))
}

func TestCartUpdate_ValidatesQuantity(t *testing.T) {
	f := newCLIFixture(t)

	for _, qty := range []string{"0", "-1", "two"} {
		_, err := f.run("cart", "update", "--", "item_1", qty)
		require.Error(t, err, qty)
		assert.Equal(t, ExitCommandError, GetExitCode(err), qty)
	}
	assert.Empty(t, f.fb.Requests())

	_, err := f.run("cart", "update", "item_1", "4")
	require.NoError(t, err)
	req, ok := f.fb.Last("PUT /api/cart/item/item_1")
	require.True(t, ok)
	assert.Equal(t, json.Number("4"), req.BodyMap()["quantity"])
}

func TestUnknownFlagIsCommandError(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("cart", "update", "item_1", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, f.fb.Requests())
}

func TestCartRemove_SendsNullVariant(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("cart", "remove", "p1")
	require.NoError(t, err)
	req, ok := f.fb.Last("DELETE /api/cart/item")
	require.True(t, ok)
	body := req.BodyMap()
	assert.Equal(t, "p1", body["productId"])
	v, present := body["variantId"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestCartClear(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("cart", "clear")
	require.NoError(t, err)
	assert.Equal(t, 1, f.fb.Count("DELETE /api/cart/clear"))
}

func TestCartMutation_BackendRejectionIsNetworkFailure(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("POST /api/cart/item", testutil.Fail(http.StatusBadRequest, "OUT_OF_STOCK", "no stock"))

	resp, err := f.runJSON("cart", "add", "p1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNetwork, resp.Error.Code)
	assert.Equal(t, 0, f.fb.Count("GET /api/cart"))
}

func TestCartCoupon_AppliedAndRejected(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("POST /api/cart/coupon",
		testutil.OK(map[string]any{"items": []any{}, "totals": map[string]any{}, "couponCode": "SAVE10"}),
		testutil.Fail(http.StatusBadRequest, "COUPON_EXPIRED", "Coupon has expired"),
	)

	out, err := f.run("cart", "coupon", "  save10 ")
	require.NoError(t, err)
	assert.Contains(t, out, "Coupon updated")
	assert.Contains(t, out, "Coupon: SAVE10")
	req, ok := f.fb.Last("POST /api/cart/coupon")
	require.True(t, ok)
	assert.Equal(t, "save10", req.BodyMap()["couponCode"])

	out, err = f.run("cart", "coupon", "OLD")
	require.NoError(t, err)
	assert.Contains(t, out, "Coupon rejected [COUPON_EXPIRED]: Coupon has expired")
}

func TestCartUncoupon(t *testing.T) {
	f := newCLIFixture(t)

	resp, err := f.runJSON("cart", "uncoupon")
	require.NoError(t, err)
	assert.Equal(t, true, dataMap(t, resp)["success"])
	assert.Equal(t, 1, f.fb.Count("DELETE /api/cart/coupon"))
}

func TestCartMerge_NothingToMergeWhenSignedOut(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("cart", "merge")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to merge")
	assert.Empty(t, f.fb.Requests())
}

func TestCartTierPricing_RequiresBusinessMode(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("cart", "tier-pricing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = f.run("session", "mode", "business")
	require.NoError(t, err)
	_, err = f.run("cart", "tier-pricing")
	require.NoError(t, err)
	req, ok := f.fb.Last("POST /api/cart/apply-tier-pricing")
	require.True(t, ok)
	assert.Equal(t, "business", req.BodyMap()["loginType"])
}

func TestAuthLogin_StoresTokensAndMerges(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("session", "show")
	require.NoError(t, err)

	out, err := f.run("auth", "login", "--access-token", "tok_1", "--refresh-token", "ref_1")
	require.NoError(t, err)
	assert.Contains(t, out, "Guest cart merged")

	req, ok := f.fb.Last("POST /api/cart/merge/" + firstGuestSession)
	require.True(t, ok)
	assert.Equal(t, "Bearer tok_1", req.Header.Get("Authorization"))

	resp, err := f.runJSON("session", "show")
	require.NoError(t, err)
	assert.Equal(t, true, dataMap(t, resp)["isAuthenticated"])

	out, err = f.run("auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	resp, err = f.runJSON("session", "show")
	require.NoError(t, err)
	assert.Equal(t, false, dataMap(t, resp)["isAuthenticated"])
}

func TestAuthLogin_RequiresAccessToken(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("auth", "login", "--access-token", "  ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAuthLogin_NoMerge(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run("auth", "login", "--access-token", "tok_1", "--no-merge")
	require.NoError(t, err)
	assert.Contains(t, out, "Authenticated: true")
	assert.Empty(t, f.fb.Requests())
}

func TestNotify_OpenStatusRestore(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("session", "show")
	require.NoError(t, err)

	out, err := f.run("notify", "open", "cart123", "sidNotif", "--negotiation", "neg_7")
	require.NoError(t, err)
	assert.Contains(t, out, "Notification cart loaded")

	req, ok := f.fb.Last("GET /api/cart")
	require.True(t, ok)
	assert.Equal(t, "sidNotif", req.Query.Get("sessionId"))
	assert.Equal(t, "true", req.Query.Get("isNotificationCart"))

	resp, err := f.runJSON("notify", "status")
	require.NoError(t, err)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["active"])
	nc, ok := data["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cart123", nc["cartId"])
	assert.Equal(t, "neg_7", nc["negotiationId"])
	assert.Equal(t, firstGuestSession, nc["originalSessionId"])

	out, err = f.run("notify", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored individual session "+firstGuestSession)

	out, err = f.run("notify", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No notification context")
}

func TestNotify_OpenRequiresIdentifiers(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("notify", "open", "cart123", " ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, f.fb.Requests())
}

func TestNotify_PayloadFromFileAndStdin(t *testing.T) {
	f := newCLIFixture(t)

	path := filepath.Join(t.TempDir(), "push.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"cart","data":{"cartId":"c1","sessionId":"sidA"}}`), 0o600))

	_, err := f.run("notify", "payload", path)
	require.NoError(t, err)
	req, ok := f.fb.Last("GET /api/cart")
	require.True(t, ok)
	assert.Equal(t, "sidA", req.Query.Get("sessionId"))

	opts := &RootOptions{clientOpts: []cartctx.Option{
		cartctx.WithClock(f.clock),
		cartctx.WithSessionSuffix(f.suffix),
	}}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(`{"cartId":"c2","sessionId":"sidB"}`))
	cmd.SetArgs([]string{"--db", f.db, "--base-url", f.fb.URL(), "notify", "payload", "-"})
	require.NoError(t, cmd.Execute())
	req, _ = f.fb.Last("GET /api/cart")
	assert.Equal(t, "sidB", req.Query.Get("sessionId"))
}

func TestNotify_PayloadMissingFile(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("notify", "payload", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPricingTier(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("GET /api/pricing/tier", testutil.OK(map[string]any{
		"productId": "p1",
		"tiers": []any{
			map[string]any{"minQuantity": 1, "maxQuantity": 9, "price": 10},
			map[string]any{"minQuantity": 10, "price": 8},
		},
	}))

	out, err := f.run("pricing", "tier", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Tiers for p1")
	assert.Contains(t, out, "1-9: 10.00")
	assert.Contains(t, out, "10+: 8.00")

	req, ok := f.fb.Last("GET /api/pricing/tier")
	require.True(t, ok)
	assert.Equal(t, "p1", req.Query.Get("productId"))
}

func TestPricingNegotiate(t *testing.T) {
	f := newCLIFixture(t)
	f.fb.On("POST /api/negotiation/create", testutil.OK(map[string]any{"id": "neg_1", "status": "pending"}))

	out, err := f.run("pricing", "negotiate", "p1", "--qty", "50", "--price", "7.5", "--note", "bulk")
	require.NoError(t, err)
	assert.Contains(t, out, "Negotiation neg_1: pending")

	req, ok := f.fb.Last("POST /api/negotiation/create")
	require.True(t, ok)
	body := req.BodyMap()
	assert.Equal(t, "p1", body["productId"])
	assert.Equal(t, json.Number("50"), body["quantity"])
	assert.Equal(t, json.Number("7.5"), body["proposedPrice"])
	assert.Equal(t, "bulk", body["note"])
}

func TestPricingNegotiate_RequiresFlags(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("pricing", "negotiate", "p1")
	require.Error(t, err)
	assert.Empty(t, f.fb.Requests())
}
