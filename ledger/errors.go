package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotMinted is returned for token ids outside [1, TokenIDPointer].
	ErrNotMinted = errors.New("fgo: Token Id has not yet been minted")

	// ErrNotOwner is returned when an owner-only call comes from anyone else.
	ErrNotOwner = errors.New("fgo: Ownable: caller is not the owner")

	// ErrNotTokenOwnerOrApproved is returned when a caller may not move a parent template.
	ErrNotTokenOwnerOrApproved = errors.New("fgo: ERC721: caller is not token owner or approved")

	// ErrIncorrectOwner is returned when from does not own the parent template.
	ErrIncorrectOwner = errors.New("fgo: ERC721: transfer from incorrect owner")

	// ErrNotApproved is returned when a child transfer or burn is attempted
	// by an operator the holder never approved.
	ErrNotApproved = errors.New("fgo: ERC1155: caller is not token owner or approved")

	// ErrInsufficientBalance is returned when a holder has fewer units than requested.
	ErrInsufficientBalance = errors.New("fgo: ERC1155: insufficient balance")

	// ErrBurned is returned for any operation on a burned token.
	ErrBurned = errors.New("fgo: token has been burned")

	// ErrZeroAddress is returned when minting or transferring to the zero address.
	ErrZeroAddress = errors.New("fgo: zero address is not a valid recipient")

	// ErrLengthMismatch is returned when parallel batch slices differ in length.
	ErrLengthMismatch = errors.New("fgo: batch argument lengths mismatch")

	// ErrInvalidAmount is returned when a token amount is zero.
	ErrInvalidAmount = errors.New("fgo: amount must be positive")

	// ErrChildNotHeld is returned when a parent is composed of child
	// templates the creator does not hold.
	ErrChildNotHeld = errors.New("fgo: child template not held by creator")

	// ErrDuplicateChild is returned when a child id is listed twice.
	ErrDuplicateChild = errors.New("fgo: child template listed more than once")

	// ErrChildMismatch is returned when burn arguments do not name the
	// parent's child templates.
	ErrChildMismatch = errors.New("fgo: child ids do not match parent template")

	// ErrInvalidAddress is returned for malformed hex addresses.
	ErrInvalidAddress = errors.New("fgo: invalid address")

	// ErrRegistryMismatch is returned when a snapshot does not fit the registry it is restored into.
	ErrRegistryMismatch = errors.New("fgo: snapshot does not match registry")
)

func notMinted(id uint64) error {
	return fmt.Errorf("%w: token %d", ErrNotMinted, id)
}

func burned(id uint64) error {
	return fmt.Errorf("%w: token %d", ErrBurned, id)
}
