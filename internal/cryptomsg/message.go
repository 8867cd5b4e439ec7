// Package cryptomsg implements the tagged, self-describing message
// envelopes exchanged during DKG and threshold decryption: keygen
// commitments and openings, posted (encrypted) votes, and decrypt
// shares. Decoding is total — a malformed or unrecognized payload
// yields an absent result rather than an error, matching the codec
// contract the rest of the core relies on.
package cryptomsg

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/pangea-net/consensus-core/internal/groupmath"
	"github.com/pangea-net/consensus-core/internal/zkp"
)

// Kind discriminates the payload carried by a Message.
type Kind string

const (
	KeygenCommit  Kind = "KEYGEN_COMMIT"
	KeygenOpening Kind = "KEYGEN_OPENING"
	PostVote      Kind = "POST_VOTE"
	DecryptShare  Kind = "DECRYPT_SHARE"
)

// Message is the tagged union of every crypto envelope kind. Only the
// fields relevant to Kind are populated; callers switch on Kind before
// reading kind-specific fields, mirroring wireMessage's discriminated
// shape on the wire.
type Message struct {
	Kind      Kind
	SessionID string

	// KEYGEN_COMMIT
	Commitment []byte

	// KEYGEN_OPENING
	Y     *groupmath.Element
	Proof *zkp.KnowledgeProof

	// POST_VOTE
	C1, C2 *groupmath.Element

	// DECRYPT_SHARE
	Share   *groupmath.Element
	EqProof *zkp.EqualityProof
}

// wireMessage is the canonical on-the-wire JSON shape: a flat struct
// with every field optional except kind/session_id, all group
// elements and scalars base64-encoded big-endian per the wire format.
type wireMessage struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id"`

	Commitment string `json:"commitment,omitempty"`

	Y     string `json:"y,omitempty"`
	ProofT string `json:"proof_t,omitempty"`
	ProofR string `json:"proof_r,omitempty"`

	C1 string `json:"c1,omitempty"`
	C2 string `json:"c2,omitempty"`

	Share   string `json:"share,omitempty"`
	EqGp    string `json:"eq_gp,omitempty"`
	EqHp    string `json:"eq_hp,omitempty"`
	EqR     string `json:"eq_r,omitempty"`
}

// Encode serializes m to its canonical JSON wire form. Every field of
// the wire form is a string, so Encode does not fail in practice.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{Kind: m.Kind, SessionID: m.SessionID}

	switch m.Kind {
	case KeygenCommit:
		w.Commitment = base64.StdEncoding.EncodeToString(m.Commitment)
	case KeygenOpening:
		if m.Y != nil {
			w.Y = base64.StdEncoding.EncodeToString(m.Y.Bytes())
		}
		if m.Proof != nil {
			w.ProofT = base64.StdEncoding.EncodeToString(m.Proof.T.Bytes())
			w.ProofR = base64.StdEncoding.EncodeToString(m.Proof.R.Bytes())
		}
	case PostVote:
		if m.C1 != nil {
			w.C1 = base64.StdEncoding.EncodeToString(m.C1.Bytes())
		}
		if m.C2 != nil {
			w.C2 = base64.StdEncoding.EncodeToString(m.C2.Bytes())
		}
	case DecryptShare:
		if m.Share != nil {
			w.Share = base64.StdEncoding.EncodeToString(m.Share.Bytes())
		}
		if m.EqProof != nil {
			w.EqGp = base64.StdEncoding.EncodeToString(m.EqProof.Gp.Bytes())
			w.EqHp = base64.StdEncoding.EncodeToString(m.EqProof.Hp.Bytes())
			w.EqR = base64.StdEncoding.EncodeToString(m.EqProof.R.Bytes())
		}
	}

	return json.Marshal(w)
}

// Decode parses payload against ctx's group parameters. It is total:
// any malformed JSON, missing field, unknown kind, or proof-parse
// failure returns ok=false rather than an error. Scalar fields
// (proof_r, eq_r) are the one exception: Encode omits a zero scalar,
// so an absent scalar field decodes as zero instead of being rejected.
func Decode(ctx *groupmath.Context, payload []byte) (m Message, ok bool) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return Message{}, false
	}
	if w.SessionID == "" {
		return Message{}, false
	}

	switch w.Kind {
	case KeygenCommit:
		commitment, err := base64.StdEncoding.DecodeString(w.Commitment)
		if err != nil || len(commitment) == 0 {
			return Message{}, false
		}
		return Message{Kind: KeygenCommit, SessionID: w.SessionID, Commitment: commitment}, true

	case KeygenOpening:
		y, err := decodeElement(ctx, w.Y)
		if err != nil {
			return Message{}, false
		}
		t, err := decodeElement(ctx, w.ProofT)
		if err != nil {
			return Message{}, false
		}
		r, err := decodeScalar(w.ProofR)
		if err != nil {
			return Message{}, false
		}
		return Message{
			Kind:      KeygenOpening,
			SessionID: w.SessionID,
			Y:         y,
			Proof:     &zkp.KnowledgeProof{T: t, R: r},
		}, true

	case PostVote:
		c1, err := decodeElement(ctx, w.C1)
		if err != nil {
			return Message{}, false
		}
		c2, err := decodeElement(ctx, w.C2)
		if err != nil {
			return Message{}, false
		}
		return Message{Kind: PostVote, SessionID: w.SessionID, C1: c1, C2: c2}, true

	case DecryptShare:
		share, err := decodeElement(ctx, w.Share)
		if err != nil {
			return Message{}, false
		}
		gp, err := decodeElement(ctx, w.EqGp)
		if err != nil {
			return Message{}, false
		}
		hp, err := decodeElement(ctx, w.EqHp)
		if err != nil {
			return Message{}, false
		}
		r, err := decodeScalar(w.EqR)
		if err != nil {
			return Message{}, false
		}
		return Message{
			Kind:      DecryptShare,
			SessionID: w.SessionID,
			Share:     share,
			EqProof:   &zkp.EqualityProof{Gp: gp, Hp: hp, R: r},
		}, true

	default:
		return Message{}, false
	}
}

func decodeElement(ctx *groupmath.Context, field string) (*groupmath.Element, error) {
	if field == "" {
		return nil, fmt.Errorf("cryptomsg: missing element field")
	}
	b, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, err
	}
	return ctx.ElementFromBytes(b)
}

func decodeScalar(field string) (*big.Int, error) {
	b, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
