package raftrpc

import "encoding/json"

// Envelope is the self-framed wire form carrying exactly one of the
// four RPC kinds, discriminated by Kind.
type Envelope struct {
	Kind Kind `json:"kind"`

	AppendEntries *AppendEntriesArgs `json:"append_entries,omitempty"`
	RequestVote   *RequestVoteArgs   `json:"request_vote,omitempty"`
	Result        *ResultArgs        `json:"result,omitempty"`
	ClientEntry   *ClientEntryArgs   `json:"client_entry,omitempty"`
}

// Encode serializes env to its JSON wire form.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses payload into an Envelope. It is total: malformed JSON
// or a kind without its matching payload returns ok=false.
func Decode(payload []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, false
	}
	switch env.Kind {
	case AppendEntries:
		if env.AppendEntries == nil {
			return Envelope{}, false
		}
	case RequestVote:
		if env.RequestVote == nil {
			return Envelope{}, false
		}
	case Result:
		if env.Result == nil {
			return Envelope{}, false
		}
	case ClientEntry:
		if env.ClientEntry == nil {
			return Envelope{}, false
		}
	default:
		return Envelope{}, false
	}
	return env, true
}
