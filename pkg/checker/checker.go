package checker

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/pixel"
	"github.com/yuvchain/yuvd/pkg/txtypes"
	yuvwire "github.com/yuvchain/yuvd/pkg/wire"
)

// Registry is the read-only chroma-metadata snapshot the checker
// consults. Callers take it from storage before invoking Check; the
// checker itself performs no I/O.
type Registry interface {
	Chroma(c chroma.Chroma) (*chroma.Metadata, bool)
}

// Checker is the stateless isolated checker. It holds no mutable state
// and is safe for concurrent use by every worker in the isolated-check
// pool.
type Checker struct {
	reversibleFreeze bool
}

// New builds a Checker. reversibleFreeze mirrors the node's
// reversible_freeze config flag; when false, Unfreeze announcements are
// always rejected as unauthorized.
func New(reversibleFreeze bool) *Checker {
	return &Checker{reversibleFreeze: reversibleFreeze}
}

// Check validates tx in isolation and returns nil on success or a typed,
// terminal CheckError on failure.
func (c *Checker) Check(tx *txtypes.TokenTransaction, reg Registry) *CheckError {
	if err := c.checkStructural(tx); err != nil {
		return err
	}

	switch v := tx.TxType.(type) {
	case *txtypes.Issue:
		return c.checkIssue(tx, v, reg)
	case *txtypes.Transfer:
		return c.checkTransfer(tx, v, reg)
	case *txtypes.Announcement:
		return c.checkAnnouncement(tx, v, reg)
	default:
		return newErr(ClassStructural, ReasonUnknownTxType, "tx_type %T", tx.TxType)
	}
}

// checkStructural rejects shapes that do not match the Bitcoin output
// count: every proved vout must exist, and at most one OP_RETURN
// announcement may be present.
func (c *Checker) checkStructural(tx *txtypes.TokenTransaction) *CheckError {
	nOut := len(tx.BitcoinTx.TxOut)
	checkVout := func(vout uint32) *CheckError {
		if int(vout) >= nOut {
			return newErr(ClassStructural, ReasonVoutMismatch, "vout %d exceeds %d outputs", vout, nOut)
		}
		return nil
	}

	switch v := tx.TxType.(type) {
	case *txtypes.Issue:
		for _, op := range v.OutputProofs {
			if err := checkVout(op.Vout); err != nil {
				return err
			}
		}
	case *txtypes.Transfer:
		for _, op := range v.OutputProofs {
			if err := checkVout(op.Vout); err != nil {
				return err
			}
		}
	}

	idx, err := yuvwire.FindAnnouncementOutput(tx.BitcoinTx)
	if err != nil {
		return newErr(ClassStructural, ReasonMultipleAnnouncements, "%v", err)
	}
	_ = idx
	return nil
}

// verifyOutputProofs checks invariant 1: every proof-carrying output's
// scriptPubKey must bit-equal what the proof derives.
func (c *Checker) verifyOutputProofs(tx *txtypes.TokenTransaction, proofs []txtypes.OutputProof) *CheckError {
	for _, op := range proofs {
		expected, err := op.Proof.ExpectedScript()
		if err != nil {
			return newErr(ClassCryptographic, ReasonScriptMismatch, "derive expected script for vout %d: %v", op.Vout, err)
		}
		actual := tx.BitcoinTx.TxOut[op.Vout].PkScript
		if !scriptsEqual(expected, actual) {
			return newErr(ClassCryptographic, ReasonScriptMismatch, "vout %d scriptPubKey mismatch", op.Vout)
		}
	}
	return nil
}

func scriptsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkIssue verifies an Issue transaction: issuer signature and the
// chroma's supply cap. An Issue carries no separate announced amount; the
// issued amount is the sum of its clear output lumas for the chroma
// (issuedAmountOf), so no announced-amount comparison is made.
func (c *Checker) checkIssue(tx *txtypes.TokenTransaction, v *txtypes.Issue, reg Registry) *CheckError {
	if err := c.verifyOutputProofs(tx, v.OutputProofs); err != nil {
		return err
	}

	meta, ok := reg.Chroma(v.Announcement.Chroma)
	if !ok {
		return newErr(ClassAuthorization, ReasonIssuerSignature, "chroma %s is not registered", v.Announcement.Chroma)
	}

	if !issuerSigned(tx.BitcoinTx, meta.IssuerKey) {
		return newErr(ClassAuthorization, ReasonIssuerSignature, "no input signed by chroma %s issuer key", v.Announcement.Chroma)
	}

	issuedAmount := pixel.LumaFromUint64(issuedAmountOf(v))

	if meta.SupplyExceeded(issuedAmount.Big().Uint64()) {
		return newErr(ClassConservation, ReasonSupplyCap, "issuance exceeds max_supply for chroma %s", v.Announcement.Chroma)
	}

	return nil
}

// issuedAmountOf recovers the announced issuance amount, which is carried
// as the sum of the Issue's own output lumas for its chroma (the wire
// announcement for an Issue only names the chroma; the amount is
// self-describing from the proofs themselves, matching the invariant
// that the announcement's amount equals the output sum).
func issuedAmountOf(v *txtypes.Issue) uint64 {
	var sum pixel.Luma
	for _, op := range v.OutputProofs {
		px := op.Proof.Pix()
		if px.IsEmpty() || px.Hidden || px.Chroma != v.Announcement.Chroma {
			continue
		}
		sum = sum.Add(px.Luma)
	}
	return sum.Big().Uint64()
}

// checkTransfer verifies per-chroma conservation across inputs and
// outputs, and rejects any input spending the burn-point.
func (c *Checker) checkTransfer(tx *txtypes.TokenTransaction, v *txtypes.Transfer, reg Registry) *CheckError {
	if err := c.verifyOutputProofs(tx, v.OutputProofs); err != nil {
		return err
	}

	inputSums := map[chroma.Chroma]pixel.Luma{}
	inputCommitments := map[chroma.Chroma]*pixel.Commitment{}
	hiddenChromas := map[chroma.Chroma]bool{}
	clearChromas := map[chroma.Chroma]bool{}

	for _, ip := range v.InputProofs {
		tweaked, err := ip.Proof.TweakedKey()
		if err != nil {
			return newErr(ClassCryptographic, ReasonScriptMismatch, "recompute input tweaked key: %v", err)
		}
		if pixel.IsBurnPoint(innerKeyOf(ip.Proof)) {
			return newErr(ClassConservation, ReasonBurntInput, "input spends burn-point output")
		}
		_ = tweaked

		px := ip.Proof.Pix()
		if px.IsEmpty() {
			continue
		}
		if px.Hidden {
			hiddenChromas[px.Chroma] = true
			if inputCommitments[px.Chroma] == nil {
				inputCommitments[px.Chroma] = px.Commit
			} else {
				inputCommitments[px.Chroma] = inputCommitments[px.Chroma].Add(px.Commit)
			}
		} else {
			clearChromas[px.Chroma] = true
			inputSums[px.Chroma] = inputSums[px.Chroma].Add(px.Luma)
		}
	}

	for c := range hiddenChromas {
		if clearChromas[c] {
			return newErr(ClassConservation, ReasonConservation, "chroma %s mixes clear and hidden inputs", c)
		}
	}

	outputSums := map[chroma.Chroma]pixel.Luma{}
	outputCommitments := map[chroma.Chroma]*pixel.Commitment{}

	for _, op := range v.OutputProofs {
		px := op.Proof.Pix()
		if px.IsEmpty() {
			continue
		}
		if px.Hidden {
			if outputCommitments[px.Chroma] == nil {
				outputCommitments[px.Chroma] = px.Commit
			} else {
				outputCommitments[px.Chroma] = outputCommitments[px.Chroma].Add(px.Commit)
			}
		} else {
			outputSums[px.Chroma] = outputSums[px.Chroma].Add(px.Luma)
		}
	}

	for chromaID, inSum := range inputSums {
		outSum := outputSums[chromaID]
		if inSum.Cmp(outSum) != 0 {
			return newErr(ClassConservation, ReasonConservation, "chroma %s: input %s != output %s", chromaID, inSum.Big(), outSum.Big())
		}
	}
	for chromaID, outSum := range outputSums {
		if _, ok := inputSums[chromaID]; !ok && !outSum.IsZero() {
			return newErr(ClassConservation, ReasonConservation, "chroma %s: input 0 != output %s", chromaID, outSum.Big())
		}
	}
	for chromaID := range outputCommitments {
		if !hiddenChromas[chromaID] {
			return newErr(ClassCryptographic, ReasonRangeProof, "chroma %s: hidden outputs without hidden inputs", chromaID)
		}
	}
	for chromaID := range hiddenChromas {
		inC := inputCommitments[chromaID]
		outC := outputCommitments[chromaID]
		if inC == nil || outC == nil || !inC.Equal(outC) {
			return newErr(ClassCryptographic, ReasonRangeProof, "chroma %s: hidden commitment sums do not match", chromaID)
		}
	}

	return nil
}

// innerKeyOf surfaces the proof's well-known inner key for the burn-point
// check. Multisig and the lightning variants carry several participant
// keys rather than one; the revocation/first-participant key is the one a
// burn transaction would plausibly reuse as the fixed inner key across
// every participant, so it is what IsBurnPoint compares against.
func innerKeyOf(p pixel.Proof) *btcec.PublicKey {
	switch v := p.(type) {
	case *pixel.Sig:
		return v.Inner
	case *pixel.EmptyPixelProof:
		return v.Inner
	case *pixel.Bulletproof:
		return v.Inner
	case *pixel.Multisig:
		if len(v.Inners) == 0 {
			return nil
		}
		return v.Inners[0]
	case *pixel.LightningCommitment:
		return v.RevocationKey
	case *pixel.LightningHtlc:
		return v.RevocationKey
	default:
		return nil
	}
}

// checkAnnouncement dispatches to the per-variant rules for Chroma
// metadata, Freeze, and Transfer-ownership announcements.
func (c *Checker) checkAnnouncement(tx *txtypes.TokenTransaction, v *txtypes.Announcement, reg Registry) *CheckError {
	switch v.Variant {
	case txtypes.AnnouncementChromaMetadata:
		return c.checkChromaMetadata(v.ChromaMetadata, reg)
	case txtypes.AnnouncementFreeze:
		return c.checkFreeze(tx, v.Freeze, reg)
	case txtypes.AnnouncementTransferOwnership:
		return c.checkTransferOwnership(tx, v.TransferOwnership, reg)
	case txtypes.AnnouncementUnfreeze:
		if !c.reversibleFreeze {
			return newErr(ClassAuthorization, ReasonFreezeAuthorization, "unfreeze is disabled; freeze is monotone")
		}
		// Unfreeze shares Freeze's (chroma, target outpoint) shape and
		// authorization rule, carried in the same Freeze field.
		return c.checkFreeze(tx, v.Freeze, reg)
	default:
		return newErr(ClassStructural, ReasonAnnouncementParse, "unknown announcement variant %d", v.Variant)
	}
}

func (c *Checker) checkChromaMetadata(m *txtypes.ChromaMetadataAnnouncement, reg Registry) *CheckError {
	if m == nil {
		return newErr(ClassStructural, ReasonAnnouncementParse, "missing chroma-metadata payload")
	}
	meta := &chroma.Metadata{
		Chroma:    m.Chroma,
		Name:      m.Name,
		Symbol:    m.Symbol,
		Decimals:  m.Decimals,
		MaxSupply: m.MaxSupply,
		Freezable: m.Freezable,
	}
	if err := meta.Validate(); err != nil {
		return newErr(ClassStructural, ReasonInvalidMetadata, "%v", err)
	}
	if _, exists := reg.Chroma(m.Chroma); exists {
		return newErr(ClassAuthorization, ReasonDuplicateRegistration, "chroma %s already registered", m.Chroma)
	}
	return nil
}

func (c *Checker) checkFreeze(tx *txtypes.TokenTransaction, f *txtypes.FreezeAnnouncement, reg Registry) *CheckError {
	if f == nil {
		return newErr(ClassStructural, ReasonAnnouncementParse, "missing freeze payload")
	}
	meta, ok := reg.Chroma(f.Chroma)
	if !ok {
		return newErr(ClassAuthorization, ReasonFreezeAuthorization, "chroma %s is not registered", f.Chroma)
	}
	if !meta.Freezable {
		return newErr(ClassAuthorization, ReasonNotFreezable, "chroma %s is not freezable", f.Chroma)
	}
	if !issuerSigned(tx.BitcoinTx, meta.IssuerKey) {
		return newErr(ClassAuthorization, ReasonFreezeAuthorization, "freeze not signed by chroma %s issuer", f.Chroma)
	}
	return nil
}

func (c *Checker) checkTransferOwnership(tx *txtypes.TokenTransaction, t *txtypes.TransferOwnershipAnnouncement, reg Registry) *CheckError {
	if t == nil {
		return newErr(ClassStructural, ReasonAnnouncementParse, "missing transfer-ownership payload")
	}
	meta, ok := reg.Chroma(t.Chroma)
	if !ok {
		return newErr(ClassAuthorization, ReasonOwnershipAuthorization, "chroma %s is not registered", t.Chroma)
	}
	if !issuerSigned(tx.BitcoinTx, meta.IssuerKey) {
		return newErr(ClassAuthorization, ReasonOwnershipAuthorization, "ownership transfer not signed by current issuer")
	}
	return nil
}

// issuerSigned reports whether any input of tx carries a P2WPKH witness
// whose pubkey matches issuerKey. Signature authenticity itself is the
// chain client's concern (the transaction only reaches the checker once
// it is a confirmed, valid Bitcoin transaction); the checker's job is
// solely to confirm the issuer's key is among the signers.
func issuerSigned(tx *wire.MsgTx, issuerKey []byte) bool {
	if len(issuerKey) == 0 {
		return false
	}
	for _, in := range tx.TxIn {
		if len(in.Witness) < 2 {
			continue
		}
		pubkeyBytes := in.Witness[len(in.Witness)-1]
		if bytes.Equal(pubkeyBytes, issuerKey) {
			return true
		}
	}
	return false
}
