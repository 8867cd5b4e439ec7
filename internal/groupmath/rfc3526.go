package groupmath

import "math/big"

// group14Hex is the 2048-bit MODP group from RFC 3526 section 3: a
// safe prime with a generator of 2. It is used as this core's default
// group so every node in a deployment agrees on parameters without a
// runtime negotiation step.
const group14Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404" +
	"DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C" +
	"245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406" +
	"B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE" +
	"45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD" +
	"24CF5F83655D23DCA3AD961C62F356208552BB9ED529077" +
	"096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
	"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF" +
	"06F4C52C9DE2BCBF6955817183995497CEA956AE515D226" +
	"1898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

// DefaultContext builds the Context for RFC 3526's 2048-bit group,
// the group every node in a deployment is expected to agree on.
func DefaultContext() (*Context, error) {
	p, ok := new(big.Int).SetString(group14Hex, 16)
	if !ok {
		panic("groupmath: malformed RFC 3526 group constant")
	}
	return NewContext(p, big.NewInt(2))
}
