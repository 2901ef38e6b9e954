package domainerrors

import "net/http"

// Code classifies an error for callers. Platform codes describe transport
// and infrastructure outcomes; ledger codes are the observable failure
// kinds of the wrap workflow and the token ledger.
type Code string

// Platform codes.
const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal"
)

// Ledger codes: wrap workflow.
const (
	CodeUnauthorized   Code = "unauthorized"
	CodeAlreadyWrapped Code = "already_wrapped"
	CodeProofExpired   Code = "proof_expired"
	CodeInvalidProof   Code = "invalid_proof"
	CodeProofNotFound  Code = "proof_not_found"
	CodeOracleNotSet   Code = "oracle_not_set"
	CodeInvalidMethod  Code = "invalid_method"
	CodeNotWrapped     Code = "not_wrapped"
	CodeAlreadyRevoked Code = "already_revoked"
)

// Ledger codes: token ledger.
const (
	CodeOwnerOnly           Code = "owner_only"
	CodeTokenNotFound       Code = "token_not_found"
	CodeTransferNotAllowed  Code = "transfer_not_allowed"
	CodeCapacityExceeded    Code = "capacity_exceeded"
	CodeInvalidRecipient    Code = "invalid_recipient"
	CodeInvalidAuthMethod   Code = "invalid_auth_method"
	CodeMetadataTooLong     Code = "metadata_too_long"
	CodeAuthWrapperNotSet   Code = "auth_wrapper_not_set"
	CodeAuthorityAlreadySet Code = "authority_already_set"
	CodeInvalidUpdateParam  Code = "invalid_update_param"
	CodeMintFailed          Code = "mint_failed"
)

// numericCodes is the frozen wire identifier of each ledger code. These
// values are part of the observable contract: existing entries must never
// change, new codes may only append.
var numericCodes = map[Code]uint32{
	CodeUnauthorized:   100,
	CodeAlreadyWrapped: 101,
	CodeProofExpired:   102,
	CodeInvalidProof:   103,
	CodeProofNotFound:  104,
	CodeOracleNotSet:   105,
	CodeInvalidMethod:  106,
	CodeNotWrapped:     107,
	CodeAlreadyRevoked: 108,

	CodeOwnerOnly:           200,
	CodeTokenNotFound:       201,
	CodeTransferNotAllowed:  202,
	CodeCapacityExceeded:    203,
	CodeInvalidRecipient:    204,
	CodeInvalidAuthMethod:   205,
	CodeMetadataTooLong:     206,
	CodeAuthWrapperNotSet:   207,
	CodeAuthorityAlreadySet: 208,
	CodeInvalidUpdateParam:  209,
	CodeMintFailed:          210,
}

// NumericOf returns the frozen wire identifier of a ledger code. The second
// return is false for platform codes, which have no numeric form.
func NumericOf(code Code) (uint32, bool) {
	n, ok := numericCodes[code]
	return n, ok
}

var httpStatus = map[Code]int{
	CodeBadRequest:         http.StatusBadRequest,
	CodeInvalidInput:       http.StatusBadRequest,
	CodeValidation:         http.StatusBadRequest,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeInvariantViolation: http.StatusUnprocessableEntity,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,

	CodeUnauthorized:   http.StatusForbidden,
	CodeAlreadyWrapped: http.StatusConflict,
	CodeProofExpired:   http.StatusConflict,
	CodeInvalidProof:   http.StatusBadRequest,
	CodeProofNotFound:  http.StatusNotFound,
	CodeOracleNotSet:   http.StatusConflict,
	CodeInvalidMethod:  http.StatusBadRequest,
	CodeNotWrapped:     http.StatusNotFound,
	CodeAlreadyRevoked: http.StatusConflict,

	CodeOwnerOnly:           http.StatusForbidden,
	CodeTokenNotFound:       http.StatusNotFound,
	CodeTransferNotAllowed:  http.StatusForbidden,
	CodeCapacityExceeded:    http.StatusConflict,
	CodeInvalidRecipient:    http.StatusBadRequest,
	CodeInvalidAuthMethod:   http.StatusBadRequest,
	CodeMetadataTooLong:     http.StatusBadRequest,
	CodeAuthWrapperNotSet:   http.StatusConflict,
	CodeAuthorityAlreadySet: http.StatusConflict,
	CodeInvalidUpdateParam:  http.StatusBadRequest,
	CodeMintFailed:          http.StatusBadGateway,
}

// HTTPStatusOf maps a code to its HTTP status. Unknown codes map to 500.
func HTTPStatusOf(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
