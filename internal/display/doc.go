// Package display keeps a live model of the receiver's front panel.
//
// State folds decoded responses into the current source and record segments,
// the last canonical function name seen for each ("basic" source/record),
// the power state, and, while a label is being programmed, which character
// position the user is editing.
//
// # Sticky Basic Functions
//
// While a label is edited the panel shows intermediate text. BasicSource and
// BasicRecord only move when the raw segment is exactly one of the nine
// canonical function names, or to the standby sentinel, so they keep naming
// the selected input through that churn.
//
// # Observers
//
// Observers are notified after every update, in registration order, outside
// the state lock. Update returns only after every observer has returned.
//
//	state := display.New(display.ObserverFunc(func(u display.Update) {
//	    fmt.Println(u.Source, u.Record)
//	}))
//
// # Thread Safety
//
// A single RWMutex guards the state. Accessors take it for the duration of
// the read only.
package display
