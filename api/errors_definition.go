//nolint:lll
package api

import (
	"fmt"
	"net/http"

	"github.com/antonymartiz/PrivateVoting/tally"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 502 or 504, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap, DON'T fill in the gap, that code was used in the past for some error
// (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound           = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Kind: "ResourceNotFound", Err: fmt.Errorf("resource not found")}
	ErrMalformedBody              = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Kind: "MalformedBody", Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidContractAddress     = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Kind: string(tally.KindInvalidContractAddress), Err: fmt.Errorf("invalid or missing contract address")}
	ErrContractNotFound           = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Kind: string(tally.KindContractNotFound), Err: fmt.Errorf("no contract at address")}
	ErrTallyNotFound              = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Kind: "TallyNotFound", Err: fmt.Errorf("tally not found")}
	ErrAlreadyFinalized           = Error{Code: 40013, HTTPstatus: http.StatusConflict, Kind: string(tally.KindAlreadyFinalized), Err: fmt.Errorf("tally already finalized")}
	ErrFinalizationInProgress     = Error{Code: 40014, HTTPstatus: http.StatusConflict, Kind: string(tally.KindFinalizationInProgress), Err: fmt.Errorf("finalization in progress")}
	ErrEncoding                   = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Kind: string(tally.KindEncodingError), Err: fmt.Errorf("vote encoding error")}
	ErrTallyOverflow              = Error{Code: 40016, HTTPstatus: http.StatusUnprocessableEntity, Kind: string(tally.KindTallyOverflow), Err: fmt.Errorf("tally overflow")}
	ErrPublicKeyNotFound          = Error{Code: 40017, HTTPstatus: http.StatusNotFound, Kind: string(tally.KindMissingKeyMaterial), Err: fmt.Errorf("no keypair")}
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindInternal), Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindInternal), Err: fmt.Errorf("internal server error")}
	ErrMissingKeyMaterial         = Error{Code: 50010, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindMissingKeyMaterial), Err: fmt.Errorf("keypair missing")}
	ErrMissingSigningCredential   = Error{Code: 50011, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindMissingSigningCredential), Err: fmt.Errorf("signing credential not set on server")}
	ErrLedgerRead                 = Error{Code: 50012, HTTPstatus: http.StatusBadGateway, Kind: string(tally.KindLedgerReadFailure), Err: fmt.Errorf("failed to fetch encrypted votes")}
	ErrDecryption                 = Error{Code: 50013, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindDecryptionFailure), Err: fmt.Errorf("decryption error")}
	ErrLedgerWrite                = Error{Code: 50014, HTTPstatus: http.StatusBadGateway, Kind: string(tally.KindLedgerWriteFailure), Err: fmt.Errorf("failed to finalize tally on ledger")}
	ErrBoundaryTimeout            = Error{Code: 50015, HTTPstatus: http.StatusGatewayTimeout, Kind: string(tally.KindBoundaryTimeout), Err: fmt.Errorf("finalizer did not answer in time")}
	ErrBoundaryProtocol           = Error{Code: 50016, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindBoundaryProtocolError), Err: fmt.Errorf("invalid finalizer response")}
	ErrMalformedCiphertext        = Error{Code: 50017, HTTPstatus: http.StatusInternalServerError, Kind: string(tally.KindMalformedCiphertext), Err: fmt.Errorf("malformed ciphertext")}
)

// kindErrors maps every pipeline error kind to its API error.
var kindErrors = map[tally.Kind]Error{
	tally.KindMissingKeyMaterial:       ErrMissingKeyMaterial,
	tally.KindMissingSigningCredential: ErrMissingSigningCredential,
	tally.KindInvalidContractAddress:   ErrInvalidContractAddress,
	tally.KindContractNotFound:         ErrContractNotFound,
	tally.KindLedgerReadFailure:        ErrLedgerRead,
	tally.KindMalformedCiphertext:      ErrMalformedCiphertext,
	tally.KindDecryptionFailure:        ErrDecryption,
	tally.KindLedgerWriteFailure:       ErrLedgerWrite,
	tally.KindBoundaryTimeout:          ErrBoundaryTimeout,
	tally.KindBoundaryProtocolError:    ErrBoundaryProtocol,
	tally.KindEncodingError:            ErrEncoding,
	tally.KindTallyOverflow:            ErrTallyOverflow,
	tally.KindAlreadyFinalized:         ErrAlreadyFinalized,
	tally.KindFinalizationInProgress:   ErrFinalizationInProgress,
	tally.KindInternal:                 ErrGenericInternalServerError,
}

// ErrorFromTally converts a pipeline error into its API error, keeping the
// free-text detail.
func ErrorFromTally(err error) Error {
	apiErr, ok := kindErrors[tally.KindOf(err)]
	if !ok {
		apiErr = ErrGenericInternalServerError
	}
	return apiErr.With(tally.DetailOf(err))
}
