package sefaz

// cStat values the emitter acts on
const (
	StatusAuthorized          = "100"
	StatusCancelled           = "101"
	StatusBatchReceived       = "103"
	StatusBatchProcessed      = "104"
	StatusBatchProcessing     = "105"
	StatusServiceRunning      = "107"
	StatusServiceStopped      = "108"
	StatusServiceDown         = "109"
	StatusDenied              = "110"
	StatusEventBatchProcessed = "128"
	StatusEventRegistered     = "135"
	StatusEventRegisteredOnly = "136"
	StatusAuthorizedLate      = "150"
	StatusCancelledLate       = "151"
	StatusEventLate           = "155"
	StatusNotFound            = "217"
	StatusIssuerIrregular     = "301"
	StatusRecipientIrregular  = "302"
	StatusRecipientNotEnabled = "303"
)

// Outcome is the verdict of the authority on one document
type Outcome string

const (
	OutcomeAuthorized Outcome = "authorized"
	OutcomeDenied     Outcome = "denied"
	OutcomeRejected   Outcome = "rejected"
)

// ClassifyProtocol maps a protNFe cStat to an outcome
func ClassifyProtocol(cStat string) Outcome {
	switch cStat {
	case StatusAuthorized, StatusAuthorizedLate:
		return OutcomeAuthorized
	case StatusDenied, StatusIssuerIrregular, StatusRecipientIrregular, StatusRecipientNotEnabled:
		return OutcomeDenied
	default:
		return OutcomeRejected
	}
}

// EventAccepted reports whether a retEvento cStat registers the event
func EventAccepted(cStat string) bool {
	switch cStat {
	case StatusEventRegistered, StatusEventRegisteredOnly, StatusEventLate:
		return true
	}
	return false
}
