// Package harness runs YAML scenarios against a cartctx client wired to a
// fake cart backend and checks the resulting request trace.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	backend:
//	  - route: POST /api/cart/coupon
//	    responses:
//	      - { status: 400, code: COUPON_INVALID, message: "Invalid coupon" }
//	steps:
//	  - op: add_item
//	    args: { product_id: p1, quantity: 2 }
//	  - op: apply_coupon
//	    args: { code: " save10 " }
//	    expect:
//	      result: { success: false, code: COUPON_INVALID }
//	assertions:
//	  - type: request_contains
//	    route: POST /api/cart/coupon
//	    body: { couponCode: save10 }
//	  - type: final_state
//	    state: { is_notification_cart: ~ }
//
// Routes without a stub answer 200 with an empty cart.
//
// # Assertion Types
//
//   - request_contains: a request to route matched query and body (subset)
//     and, if bearer is set, carried that bearer token
//   - request_order: routes were first requested in the given order
//   - request_count: route was requested exactly count times
//   - final_state: persisted keys hold the given values; ~ means absent
//
// # Deterministic Execution
//
// The client runs with a fake clock fixed at 2024-01-01T00:00:00Z, session
// suffixes "hns00001", "hns00002", ..., correlation ids "corr-0001", ...,
// and no retries, so request traces are byte-stable across runs and can be
// compared against golden files:
//
//	go test ./internal/harness -update
package harness
