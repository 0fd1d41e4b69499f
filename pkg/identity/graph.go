// Copyright 2025 Certen Protocol
//
// Package identity implements the continuity graph: identifier registration,
// key rotation, and the acyclic chain of control a registrant carries across
// key changes (spec §4.4). Validation rejects malformed identifiers,
// documents without a verification method, and rotations whose continuity
// claim does not verify under the old key.
package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"regexp"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// identifierPattern enforces the <method>:<method-specific-id> shape, ASCII
// only, named in spec §4.4 and §6.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+:[\x21-\x7E]+$`)

var (
	ErrMalformedIdentifier = errors.New("identity: identifier must match <method>:<method-specific-id>")
	ErrNoVerificationMethod = errors.New("identity: document must contain at least one verification method")
)

// ValidateIdentifier reports whether id has the required opaque-handle shape.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return ErrMalformedIdentifier
	}
	return nil
}

// Graph is the identity-continuity engine. It holds no state of its own;
// everything persists through the injected store.
type Graph struct {
	store store.IdentityStore
}

// New constructs a Graph over the given identity store.
func New(s store.IdentityStore) *Graph {
	return &Graph{store: s}
}

// Register creates a brand-new identifier with its initial document and an
// active continuity node with no predecessor.
func (g *Graph) Register(ctx context.Context, identifier string, methods []model.VerificationMethod) (*model.IdentityDocument, error) {
	if err := ValidateIdentifier(identifier); err != nil {
		return nil, regerr.Validation("invalid_identifier", err.Error())
	}
	if len(methods) == 0 {
		return nil, regerr.Validation("missing_verification_method", ErrNoVerificationMethod.Error())
	}

	doc := &model.IdentityDocument{
		Identifier:          identifier,
		VerificationMethods: methods,
		CreatedAt:           time.Now(),
	}
	if err := g.store.PutDocument(ctx, doc); err != nil {
		return nil, err
	}

	node := &model.ContinuityNode{
		Identifier:     identifier,
		KeyFingerprint: fingerprint(methods[0].PublicKey),
		CreatedAt:      doc.CreatedAt,
		Status:         model.ContinuityActive,
	}
	if err := g.store.PutContinuityNode(ctx, node); err != nil {
		return nil, err
	}
	return doc, nil
}

// RotationRequest is the input to Rotate: the caller asserts control of
// oldID by signing a continuity claim with the old key and presenting the
// new public key to take over.
type RotationRequest struct {
	OldID              string
	NewID              string
	NewVerificationKey model.VerificationMethod
	ContinuityClaim    []byte // the message the signature covers
	SignedByOldKey     []byte // signature over ContinuityClaim, under the old key
}

// Rotate produces a new identifier, a new document, and a new continuity
// node pointing back at oldID, then marks the old node rotated. The
// rotation is rejected if the continuity-claim signature does not verify
// under the old identifier's registered key.
func (g *Graph) Rotate(ctx context.Context, req RotationRequest) (*model.IdentityDocument, error) {
	if err := ValidateIdentifier(req.NewID); err != nil {
		return nil, regerr.Validation("invalid_identifier", err.Error())
	}

	oldDoc, err := g.store.GetDocument(ctx, req.OldID)
	if err != nil {
		return nil, err
	}
	oldNode, err := g.store.GetContinuityNode(ctx, req.OldID)
	if err != nil {
		return nil, err
	}
	if oldNode.Status != model.ContinuityActive {
		return nil, regerr.Validation("rotation_source_inactive", "identifier "+req.OldID+" is not active")
	}

	if !verifyWithAnyMethod(oldDoc.VerificationMethods, req.ContinuityClaim, req.SignedByOldKey) {
		return nil, regerr.Auth("rotation_signature_invalid", "continuity claim does not verify under the old key")
	}

	newDoc := &model.IdentityDocument{
		Identifier:          req.NewID,
		VerificationMethods: []model.VerificationMethod{req.NewVerificationKey},
		CreatedAt:           time.Now(),
		PreviousIdentifier:  req.OldID,
		ContinuityClaim:     req.ContinuityClaim,
	}
	if err := g.store.PutDocument(ctx, newDoc); err != nil {
		return nil, err
	}

	newNode := &model.ContinuityNode{
		Identifier:         req.NewID,
		KeyFingerprint:     fingerprint(req.NewVerificationKey.PublicKey),
		PreviousIdentifier: req.OldID,
		ContinuityClaim:    req.ContinuityClaim,
		CreatedAt:          newDoc.CreatedAt,
		Status:             model.ContinuityActive,
	}
	if err := g.store.PutContinuityNode(ctx, newNode); err != nil {
		return nil, err
	}

	oldNode.Status = model.ContinuityRotated
	if err := g.store.PutContinuityNode(ctx, oldNode); err != nil {
		return nil, err
	}

	return newDoc, nil
}

// WalkChain returns the continuity chain for identifier, oldest first,
// refusing (via the store's cycle detection) any chain that loops.
func (g *Graph) WalkChain(ctx context.Context, identifier string) ([]*model.ContinuityNode, error) {
	return g.store.WalkContinuityChain(ctx, identifier)
}

func verifyWithAnyMethod(methods []model.VerificationMethod, message, signature []byte) bool {
	for _, m := range methods {
		if m.KeyAlgorithm != "ed25519" {
			continue
		}
		if crypto.VerifySignature(ed25519.PublicKey(m.PublicKey), message, signature) {
			return true
		}
	}
	return false
}

func fingerprint(pubkey []byte) string {
	sum := crypto.Hash(pubkey)
	return crypto.ToHex(sum)
}
