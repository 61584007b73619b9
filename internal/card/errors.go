package card

import "errors"

// Domain errors for the card package.
//
//	if errors.Is(err, card.ErrCardNotFound) {
//	    // respond with status "error"
//	}
var (
	// ErrCardExists is returned when adding a card whose id is already registered.
	ErrCardExists = errors.New("card: already exists")

	// ErrCardNotFound is returned when a card id is not registered.
	ErrCardNotFound = errors.New("card: not found")

	// ErrInvalidCardID is returned for an empty card id.
	ErrInvalidCardID = errors.New("card: invalid card id")
)
