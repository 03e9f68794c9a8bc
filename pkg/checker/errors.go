// Package checker implements the isolated checker: a stateless,
// per-transaction validator of the token protocol's cryptographic and
// conservation rules.
package checker

import "fmt"

// Class classifies a check failure per the error taxonomy. Structural,
// Cryptographic, Conservation, and Authorization failures are all
// terminal rejects; Dependency and Confirmation failures belong to the
// attacher and confirmator respectively and are not produced here.
type Class string

const (
	ClassStructural     Class = "structural"
	ClassCryptographic  Class = "cryptographic"
	ClassConservation   Class = "conservation"
	ClassAuthorization  Class = "authorization"
)

// Reason is a short machine-stable tag identifying the specific rule
// that failed, used by callers (e.g. the RPC surface's emulate method)
// that need to report why without parsing prose.
type Reason string

const (
	ReasonVoutMismatch         Reason = "VoutMismatch"
	ReasonScriptMismatch       Reason = "ScriptMismatch"
	ReasonAnnouncementParse    Reason = "AnnouncementParse"
	ReasonMultipleAnnouncements Reason = "MultipleAnnouncements"
	ReasonIssuerSignature      Reason = "IssuerSignatureMissing"
	ReasonSupplyCap            Reason = "SupplyCapExceeded"
	ReasonAmountMismatch       Reason = "AnnouncedAmountMismatch"
	ReasonConservation         Reason = "ConservationViolation"
	ReasonBurntInput           Reason = "BurntInput"
	ReasonRangeProof           Reason = "RangeProofInvalid"
	ReasonFrozen               Reason = "Frozen"
	ReasonNotFreezable         Reason = "NotFreezable"
	ReasonFreezeAuthorization  Reason = "FreezeAuthorization"
	ReasonDuplicateRegistration Reason = "DuplicateRegistration"
	ReasonInvalidMetadata      Reason = "InvalidMetadata"
	ReasonOwnershipAuthorization Reason = "OwnershipAuthorization"
	ReasonUnknownTxType        Reason = "UnknownTxType"
	ReasonMissingInputProof    Reason = "MissingInputProof"
)

// CheckError is the typed, terminal verdict the isolated checker returns
// on failure.
type CheckError struct {
	Class  Class
	Reason Reason
	Detail string
}

func (e *CheckError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s/%s", e.Class, e.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", e.Class, e.Reason, e.Detail)
}

func newErr(class Class, reason Reason, format string, args ...interface{}) *CheckError {
	return &CheckError{Class: class, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
