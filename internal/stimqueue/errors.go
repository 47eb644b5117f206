package stimqueue

import (
	stderrors "errors"

	"github.com/tphakala/audition-go/internal/errors"
)

// Component identifier for stimulus queue errors
const ComponentStimQueue = "stimqueue"

var (
	// ErrQueueEmpty signals that no token key is available for dispatch.
	// The dispatch engine converts it to padding silence.
	ErrQueueEmpty = errors.New(stderrors.New("queue is empty")).
			Component(ComponentStimQueue).
			Category(errors.CategoryState).
			Build()

	// ErrKeyNotInQueue is returned when decrementing or removing a key
	// that is not part of the current ordering.
	ErrKeyNotInQueue = errors.New(stderrors.New("key not in queue")).
				Component(ComponentStimQueue).
				Category(errors.CategoryNotFound).
				Build()

	// ErrUnknownEvent is returned by Connect for an unrecognized event name.
	ErrUnknownEvent = errors.New(stderrors.New("unknown event")).
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Build()

	// ErrInvalidDelay is returned when a token's delay sequence yields a
	// negative intertrial interval.
	ErrInvalidDelay = errors.New(stderrors.New("invalid delay")).
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Build()

	// ErrDelaysExhausted is returned when a finite delay sequence runs out
	// before its token's trials do.
	ErrDelaysExhausted = errors.New(stderrors.New("delay sequence exhausted")).
				Component(ComponentStimQueue).
				Category(errors.CategoryState).
				Build()

	// ErrRewindPastEnd is returned when rewinding beyond the last
	// generated sample or before the queue start.
	ErrRewindPastEnd = errors.New(stderrors.New("cannot rewind past last sample generated")).
				Component(ComponentStimQueue).
				Category(errors.CategoryState).
				Build()
)
