// Package rest is the request execution core of the client.
//
// A Request is a deferred single call: it runs on first access to its result
// and keeps that outcome for good. A BatchRequest sends up to MaxBatchSize
// Requests as one "batch" call and settles every carried Request from the
// composite reply. A BatchesRequest splits any number of Requests into
// consecutive batches and merges the replies in input order.
//
// Example:
//
//	deal := rest.NewRequest(t, "crm.deal.get", rest.NewParams("id", 42))
//	user := rest.NewRequest(t, "user.current", nil)
//
//	set, _ := rest.Keyed(rest.Entry{Key: "deal", Request: deal}, rest.Entry{Key: "me", Request: user})
//	if _, err := rest.NewBatchRequest(t, set, rest.WithHalt(true)).Result(ctx); err != nil {
//		return err
//	}
//	// no further network call: deal was settled by the batch
//	raw, err := deal.Result(ctx)
package rest
