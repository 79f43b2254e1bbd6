package auction

import "errors"

// Errors returned by auction operations. Bid rejections are local: the
// intent is dropped and the lot is left untouched.
var (
	ErrNoLotOpen         = errors.New("no lot is open")
	ErrLotAlreadyOpen    = errors.New("a lot is already open")
	ErrUnknownTeam       = errors.New("unknown team")
	ErrIllegalBidAmount  = errors.New("amount is not the next legal bid")
	ErrInsufficientFunds = errors.New("insufficient purse")
	ErrInvalidPhase      = errors.New("operation not allowed in current phase")
	// ErrInvariantViolation means the engine accepted a bid the ledger
	// cannot honour. It is a desynchronization bug, fatal to the session.
	ErrInvariantViolation = errors.New("ledger invariant violation")
)
