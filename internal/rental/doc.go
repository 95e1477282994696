// Package rental is the circulation engine: the only code path that moves a book copy
// between the shelf and a member.
//
// OpenRental and CloseRental each run as one unit of work over the catalog and the
// ledger. A book's available_copies plus its open rentals always equals its
// total_copies; the decrement is conditional on a copy being left, so two callers
// racing for the last copy get one rental and one ErrOutOfStock.
//
// Store implementations live in internal/repo. They report failures through the
// store-contract sentinels in ports.go, which the engine turns into *Error values
// carrying a Kind and the id of the entity involved.
package rental
