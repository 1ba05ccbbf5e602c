// Package generate produces the six tables of a run from one seeded draw source and
// streams them, table by table, into batched columnar writers.
//
// Tables are generated strictly in order: orgs, users, products, orders, payments,
// events. Each generator owns the identifier pool of its table and freezes it when it
// completes; later generators only sample frozen pools.
//
// # Draw order
//
// Every row consumes draws in a fixed order. The order is part of the output contract:
// changing it changes every table produced from a given seed.
//
//	orgs      org_id uuid, org_name (prefix, noun, suffix), plan_id, is_enterprise,
//	          created_at, billing_country, updated_at offset
//	users     user_id uuid, org_id sample, first name, last name, email domain,
//	          created_at, country_code, is_deleted, updated_at offset,
//	          null-email trial, dangling-org trial, unknown org uuid,
//	          duplicate trial, duplicate index
//	products  product_id uuid, sku digits (4), title, category, is_active,
//	          launched_at, updated_at offset
//	orders    order_id uuid, org_id sample, user_id sample, product_id sample,
//	          quantity, unit_price, currency, status, order_ts, updated_at offset,
//	          negative-price trial, zero-quantity trial
//	payments  order sample, charge_id uuid, paid_ts offset, status, refund factor,
//	          auth_id uuid
//	events    event_id uuid, event_ts, received_ts offset, user_id sample,
//	          org_id sample, event_type, ip (4 bytes), browser, page, cart_value,
//	          drift trial, drift word, leak trial, leaked email (first, last, domain)
//
// Anomaly payloads (unknown org id, duplicate index, drift word, leaked email) are drawn
// whether or not their trial fires, so a policy with every probability at zero yields
// the same clean values as the default policy.
package generate
