// Package tokgov embeds the daily token governor in a Go process.
//
// The governor meters AI token consumption against a fixed daily budget,
// answers admission queries by priority and reports a PERFORMANCE or SAVER
// mode. State survives restarts through a file, an embedded Badger database,
// or a shared Redis/Valkey hash.
//
// # Check then record
//
//	gov, _ := tokgov.New(ctx, tokgov.WithFile("state.json"), tokgov.WithBudget(1_000_000))
//	defer gov.Close()
//	if ok, _ := gov.CanConsume(ctx, 1200, tokgov.PriorityNormal); ok {
//	    // call the model, then
//	    _ = gov.RecordConsumption(ctx, actual)
//	}
//
// # Reserve then settle
//
// Reservations hold budget so concurrent callers cannot be admitted against
// the same headroom:
//
//	r, ok, _ := gov.Reserve(ctx, 1200, tokgov.PriorityLow)
//	if ok {
//	    _ = gov.Settle(ctx, r.ID, actual)
//	}
package tokgov
