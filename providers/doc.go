// Package providers holds the upstream adapters behind the core ports:
// plaid (aggregator), dwolla (payments rail) and appwrite (identity).
package providers
