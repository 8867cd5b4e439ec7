package raftrpc

import "testing"

func TestEnvelopeRoundTripAppendEntries(t *testing.T) {
	env := Envelope{
		Kind: AppendEntries,
		AppendEntries: &AppendEntriesArgs{
			UUID:         "corr-1",
			Term:         2,
			LeaderID:     1,
			PrevLogIndex: 1,
			PrevLogTerm:  1,
			Entries:      []Entry{{Index: 2, Term: 2, Payload: []byte("x")}},
			LeaderCommit: 1,
		},
	}
	enc, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, ok := Decode(enc)
	if !ok {
		t.Fatalf("Decode rejected a valid envelope")
	}
	if dec.AppendEntries.UUID != "corr-1" || dec.AppendEntries.Entries[0].Index != 2 {
		t.Fatalf("round trip mismatch: %+v", dec.AppendEntries)
	}
}

func TestEnvelopeRoundTripRequestVote(t *testing.T) {
	env := Envelope{
		Kind: RequestVote,
		RequestVote: &RequestVoteArgs{
			UUID:         "corr-2",
			Term:         3,
			CandidateID:  2,
			LastLogIndex: 5,
			LastLogTerm:  2,
		},
	}
	enc, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, ok := Decode(enc)
	if !ok {
		t.Fatalf("Decode rejected a valid envelope")
	}
	if dec.RequestVote.CandidateID != 2 || dec.RequestVote.LastLogTerm != 2 {
		t.Fatalf("round trip mismatch: %+v", dec.RequestVote)
	}
}

func TestDecodeRejectsMismatchedKind(t *testing.T) {
	if _, ok := Decode([]byte(`{"kind":"APPEND_ENTRIES"}`)); ok {
		t.Fatalf("expected rejection of a kind with no matching payload")
	}
	if _, ok := Decode([]byte(`not json`)); ok {
		t.Fatalf("expected rejection of malformed JSON")
	}
	if _, ok := Decode([]byte(`{"kind":"BOGUS"}`)); ok {
		t.Fatalf("expected rejection of an unknown kind")
	}
}
