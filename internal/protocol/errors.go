package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Engine state.
	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"

	// Rule/action layer. These are policy rejections: the request was
	// understood and nothing changed.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrNoPermission   = "E_NO_PERMISSION"
	ErrNotClaimed     = "E_NOT_CLAIMED"
	ErrAlreadyClaimed = "E_ALREADY_CLAIMED"
	ErrChunkLimit     = "E_CHUNK_LIMIT"
	ErrClaimLimit     = "E_CLAIM_LIMIT"
	ErrWouldSplit     = "E_WOULD_SPLIT"
	ErrPlayerNotFound = "E_PLAYER_NOT_FOUND"
	ErrAlreadyTrusted = "E_ALREADY_TRUSTED"
	ErrNotTrusted     = "E_NOT_TRUSTED"
	ErrBadRule        = "E_BAD_RULE"
	ErrNoClaims       = "E_NO_CLAIMS"
)

// CodeConfirmMerge asks the actor to repeat a claim that would merge claims.
const CodeConfirmMerge = "CONFIRM_MERGE"

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBusy:            {},
	ErrInternal:        {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrNotClaimed:      {},
	ErrAlreadyClaimed:  {},
	ErrChunkLimit:      {},
	ErrClaimLimit:      {},
	ErrWouldSplit:      {},
	ErrPlayerNotFound:  {},
	ErrAlreadyTrusted:  {},
	ErrNotTrusted:      {},
	ErrBadRule:         {},
	ErrNoClaims:        {},
	CodeConfirmMerge:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
