package funding

import "errors"

var (
	// ErrBelowMinimum rejects contributions whose USD-equivalent value is
	// under the funding floor. The inbound value is never consumed.
	ErrBelowMinimum = errors.New("funding: contribution below minimum USD value")
	// ErrNotOwner rejects sweep attempts from any caller other than the owner.
	ErrNotOwner = errors.New("funding: caller is not the owner")
	// ErrTransferFailed indicates the outbound sweep transfer was rejected;
	// every state change made by the sweep is rolled back.
	ErrTransferFailed = errors.New("funding: sweep transfer failed")
	// ErrIndexOutOfRange rejects positional funder queries outside the
	// current sequence bounds.
	ErrIndexOutOfRange = errors.New("funding: funder index out of range")

	errNilState     = errors.New("funding engine: state not configured")
	errNilConverter = errors.New("funding engine: price converter not configured")
)
