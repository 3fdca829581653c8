package domain

const (
	AccountStatusActive  = "ACTIVE"
	AccountStatusBlocked = "BLOCKED"
	AccountStatusClosed  = "CLOSED"

	TransferStatusPending     = "PENDING"
	TransferStatusProcessing  = "PROCESSING"
	TransferStatusCompleted   = "COMPLETED"
	TransferStatusFailed      = "FAILED"
	TransferStatusCompensated = "COMPENSATED"

	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"

	AggregateTypeTransfer = "TRANSFER"
	AggregateTypeAccount  = "ACCOUNT"

	EventTransferCreated     = "TRANSFER_CREATED"
	EventTransferProcessing  = "TRANSFER_PROCESSING"
	EventTransferCompleted   = "TRANSFER_COMPLETED"
	EventTransferFailed      = "TRANSFER_FAILED"
	EventTransferCompensated = "TRANSFER_COMPENSATED"
	EventAccountDebited      = "ACCOUNT_DEBITED"
	EventAccountCredited     = "ACCOUNT_CREDITED"

	// GenesisHash is the previous_hash of the first event in the chain.
	GenesisHash = "0"
)

// SupportedCurrencies lists the ISO 4217 codes accounts may be opened in.
var SupportedCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"MXN": {},
	"PEN": {},
}

func IsSupportedCurrency(code string) bool {
	_, ok := SupportedCurrencies[code]
	return ok
}
