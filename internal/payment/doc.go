// Package payment relays the two Mercado Pago calls the web app needs:
// creating a checkout preference and confirming a payment when the webhook
// fires. Both are thin pass-throughs. There is no ledger and no retry; the
// Mercado Pago API stays the source of truth for payment state.
package payment
