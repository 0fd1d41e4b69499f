// Copyright 2025 Certen Protocol
//
// Package model defines the core entities of the attestation registry:
// proof records, batches, anchors, identity documents, credentials, and
// disputes. Fields that the original "Proof of Human Work" design carried
// as dynamically-typed JSON blobs (process metrics, derived-from references,
// assistance profiles) are represented here as tagged variant types instead,
// per the boundary-normalization guidance in the spec's design notes.
package model

import "time"

// Tier is the quality band assigned to a ProofRecord.
type Tier string

const (
	TierGreen  Tier = "green"
	TierBlue   Tier = "blue"
	TierPurple Tier = "purple"
	TierGrey   Tier = "grey"
)

// rank orders tiers for monotonicity comparisons (grey < purple < blue < green).
var tierRank = map[Tier]int{
	TierGrey:   0,
	TierPurple: 1,
	TierBlue:   2,
	TierGreen:  3,
}

// Rank returns the ordinal position of a tier on the grey<purple<blue<green scale.
// Unknown tiers rank below grey.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t is the same as or above floor on the tier scale.
func (t Tier) AtLeast(floor Tier) bool {
	return t.Rank() >= floor.Rank()
}

// AssistanceProfile describes how a piece of content was produced.
type AssistanceProfile string

const (
	AssistanceHumanOnly   AssistanceProfile = "human-only"
	AssistanceAIAssisted  AssistanceProfile = "AI-assisted"
	AssistanceAIGenerated AssistanceProfile = "AI-generated"
)

// AttestorType enumerates the categories of accredited credential issuers.
type AttestorType string

const (
	AttestorAcademic   AttestorType = "academic"
	AttestorProfessional AttestorType = "professional"
	AttestorMedia      AttestorType = "media"
	AttestorCivic      AttestorType = "civic"
	AttestorCommercial AttestorType = "commercial"
	AttestorCommunity  AttestorType = "community"
)

// AttestorStatus is the lifecycle state of an AttestorRecord.
type AttestorStatus string

const (
	AttestorPending  AttestorStatus = "pending"
	AttestorActive   AttestorStatus = "active"
	AttestorSuspended AttestorStatus = "suspended"
	AttestorRevoked  AttestorStatus = "revoked"
)

// ContinuityStatus is the lifecycle state of a ContinuityNode.
type ContinuityStatus string

const (
	ContinuityActive  ContinuityStatus = "active"
	ContinuityRotated ContinuityStatus = "rotated"
	ContinuityRevoked ContinuityStatus = "revoked"
)

// ChallengeStatus is the lifecycle state of a Challenge.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeResponded ChallengeStatus = "responded"
	ChallengeResolved  ChallengeStatus = "resolved"
	ChallengeDismissed ChallengeStatus = "dismissed"
)

// ChallengeResolution is the terminal disposition of a resolved challenge.
type ChallengeResolution string

const (
	ResolutionExonerated ChallengeResolution = "exonerated"
	ResolutionConfirmed  ChallengeResolution = "confirmed"
	ResolutionDismissed  ChallengeResolution = "dismissed"
)

// ProcessMetrics carries the optional authoring-process telemetry submitted
// with a proof. It replaces the original's untyped process-metrics blob.
type ProcessMetrics struct {
	Entropy          float64 `json:"entropy"`
	TemporalCoherence float64 `json:"temporal_coherence"`
	DurationMs       int64   `json:"duration_ms"`
	InputEvents      int64   `json:"input_events"`
	MeetsThresholds  bool    `json:"meets_thresholds"`
}

// DerivedFromKind tags the shape of a DerivedFromRef, replacing the original's
// string | string[] | object[] ambiguity with a single explicit variant.
type DerivedFromKind string

const (
	DerivedFromContentHash DerivedFromKind = "content_hash"
	DerivedFromClaimURI    DerivedFromKind = "claim_uri"
)

// DerivedFromRef is one normalized entry in a ProofRecord's provenance list.
type DerivedFromRef struct {
	Kind  DerivedFromKind `json:"kind"`
	Value string          `json:"value"`
	Note  string          `json:"note,omitempty"`
}

// EnvironmentAttestation is an opaque, authenticated description of the
// authoring environment (device attestation blob, sandbox report, etc).
// The registry treats its contents as opaque; only presence/shape is
// validated.
type EnvironmentAttestation struct {
	Format string `json:"format"`
	Blob   []byte `json:"blob"`
}

// ProofRecord is the central attested record of the registry.
type ProofRecord struct {
	ID                     string                  `json:"id"`
	ContentHash            string                  `json:"content_hash"` // 0x-prefixed, 64 hex chars
	Signature              []byte                  `json:"signature"`
	AuthorID               string                  `json:"author_id"`
	AuthorTimestamp         time.Time               `json:"author_timestamp"`
	SubmittedAt            time.Time               `json:"submitted_at"`
	BatchID                string                  `json:"batch_id,omitempty"`
	MerkleIndex            *int                    `json:"merkle_index,omitempty"`
	ProcessDigest          string                  `json:"process_digest,omitempty"`
	CompoundHash           string                  `json:"compound_hash,omitempty"`
	ProcessMetrics         *ProcessMetrics         `json:"process_metrics,omitempty"`
	ZKProofBlob            []byte                  `json:"zk_proof_blob,omitempty"`
	Tier                   Tier                    `json:"tier"`
	AuthoredOnDevice       bool                    `json:"authored_on_device,omitempty"`
	EnvironmentAttestation *EnvironmentAttestation `json:"environment_attestation,omitempty"`
	DerivedFromRefs        []DerivedFromRef        `json:"derived_from_refs,omitempty"`
	AssistanceProfile      AssistanceProfile       `json:"assistance_profile"`
	ClaimURI               string                  `json:"claim_uri,omitempty"`
}

// Anchor records one external-chain commitment of a Batch root.
type Anchor struct {
	Chain       string    `json:"chain"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber *uint64   `json:"block_number,omitempty"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

// Batch groups a contiguous, ordered set of proofs under one Merkle root.
type Batch struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"` // 0x-prefixed hex
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	AnchoredAt *time.Time `json:"anchored_at,omitempty"`
	Anchors    []Anchor  `json:"anchors"`
}

// VerificationMethod is one public key an identifier may sign with.
type VerificationMethod struct {
	KeyAlgorithm string `json:"key_algorithm"` // e.g. "ed25519"
	PublicKey    []byte `json:"public_key"`
}

// IdentityDocument describes the verification methods and continuity state
// of an identifier at the time it was created.
type IdentityDocument struct {
	Identifier          string                `json:"identifier"`
	VerificationMethods []VerificationMethod  `json:"verification_methods"`
	CreatedAt           time.Time             `json:"created_at"`
	PreviousIdentifier  string                `json:"previous_identifier,omitempty"`
	ContinuityClaim     []byte                `json:"continuity_claim,omitempty"`
}

// ContinuityNode is one link in an identifier's rotation chain.
type ContinuityNode struct {
	Identifier         string           `json:"identifier"`
	KeyFingerprint     string           `json:"key_fingerprint"`
	PreviousIdentifier string           `json:"previous_identifier,omitempty"`
	ContinuityClaim    []byte           `json:"continuity_claim,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	Status             ContinuityStatus `json:"status"`
}

// AttestorRecord is an accredited issuer of human-verification credentials.
type AttestorRecord struct {
	Identifier    string         `json:"identifier"`
	Name          string         `json:"name"`
	Type          AttestorType   `json:"type"`
	PublicKey     []byte         `json:"public_key"`
	Status        AttestorStatus `json:"status"`
	RegisteredAt  time.Time      `json:"registered_at"`
	LastAudit     *time.Time     `json:"last_audit,omitempty"`
	NextAuditDue  *time.Time     `json:"next_audit_due,omitempty"`
}

// Credential is a verifiable claim issued by an active attestor.
type Credential struct {
	Hash           string     `json:"hash"` // primary key: H(credential - proof)
	AttestorID     string     `json:"attestor_id"`
	SubjectID      string     `json:"subject_id"`
	AssuranceLevel Tier       `json:"assurance_level"`
	IssuedAt       time.Time  `json:"issued_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Proof          []byte     `json:"proof"`
}

// RevocationEntry marks a Credential as no longer valid.
type RevocationEntry struct {
	CredentialHash    string    `json:"credential_hash"`
	RevokedAt         time.Time `json:"revoked_at"`
	Reason            string    `json:"reason"`
	AttestorSignature []byte    `json:"attestor_signature"`
	AttestorID        string    `json:"attestor_id"`
}

// Reputation is the fraud-mitigation-derived standing of an identity.
type Reputation struct {
	Identifier       string    `json:"identifier"`
	Score            int       `json:"score"` // clamped [0,100]
	Tier             Tier      `json:"tier"`
	SuccessfulProofs int       `json:"successful_proofs"`
	Anomalies        int       `json:"anomalies"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Challenge is a dispute raised against a ProofRecord.
type Challenge struct {
	ID              string               `json:"id"`
	ProofHash       string               `json:"proof_hash"`
	ProofAuthorID   string               `json:"proof_author_id"`
	ChallengerID    string               `json:"challenger_id"`
	Reason          string               `json:"reason"`
	Description     string               `json:"description"`
	Evidence        []byte               `json:"evidence,omitempty"`
	Status          ChallengeStatus      `json:"status"`
	Resolution      *ChallengeResolution `json:"resolution,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	RespondedAt     *time.Time           `json:"responded_at,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	AuthorResponse  string               `json:"author_response,omitempty"`
	ResolverID      string               `json:"resolver_id,omitempty"`
	ResolutionNotes string               `json:"resolution_notes,omitempty"`
}

// TransparencyEventType tags a TransparencyLogEntry.
type TransparencyEventType string

const (
	EventChallengeOpened    TransparencyEventType = "challenge_opened"
	EventChallengeResponded TransparencyEventType = "challenge_responded"
	EventChallengeResolved  TransparencyEventType = "challenge_resolved"
	EventChallengeDismissed TransparencyEventType = "challenge_dismissed"
)

// TransparencyLogEntry is one append-only dispute-lifecycle event.
type TransparencyLogEntry struct {
	Type       TransparencyEventType `json:"type"`
	ChallengeID string               `json:"challenge_id"`
	ProofHash  string                `json:"proof_hash"`
	ActorID    string                `json:"actor_id,omitempty"`
	Resolution *ChallengeResolution  `json:"resolution,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
	Details    string                `json:"details,omitempty"`
}

// AuditEntryType tags an audit-log append for the attestor/credential layer.
type AuditEntryType string

const (
	AuditAttestorRegistered AuditEntryType = "attestor_registered"
	AuditAttestorApproved   AuditEntryType = "attestor_approved"
	AuditAttestorSuspended  AuditEntryType = "attestor_suspended"
	AuditAttestorRevoked    AuditEntryType = "attestor_revoked"
	AuditCredentialIssued   AuditEntryType = "credential_issued"
	AuditCredentialRevoked  AuditEntryType = "credential_revoked"
	AuditIdentifierRotated  AuditEntryType = "identifier_rotated"
)

// AuditEntry is one immutable audit-log record.
type AuditEntry struct {
	Type       AuditEntryType `json:"type"`
	AttestorID string         `json:"attestor_id,omitempty"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AnomalyEntry records a single fraud-mitigation anomaly observation.
type AnomalyEntry struct {
	Identifier string    `json:"identifier"`
	Kind       string    `json:"kind"` // "rate_limit" | "entropy_discrepancy"
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SubmissionEntry records one accepted intake event for rate-limit history
// and, when present, the submitted entropy value used for the per-identity
// historical-distribution check (spec §4.6).
type SubmissionEntry struct {
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
	Entropy    *float64  `json:"entropy,omitempty"`
}

// Receipt is returned to a caller on successful intake.
type Receipt struct {
	ReceiptHash string    `json:"receipt_hash"`
	Timestamp   time.Time `json:"timestamp"`
	RegistryID  string    `json:"registry"`
}
