package merkle

import (
	"fmt"

	"github.com/hupe1980/vecfetch/internal/hash"
)

// VerifyProof checks that data is leaf `leaf` of the tree with the given
// shape and root, using only the sibling digests returned by
// Reference.Proof.
func VerifyProof(alg hash.Algorithm, shape Shape, root Hash, leaf int, data []byte, proof []Hash) error {
	if leaf < 0 || leaf >= shape.LeafCount() {
		return fmt.Errorf("%w: leaf %d of %d", ErrLeafOutOfRange, leaf, shape.LeafCount())
	}
	path := shape.VerificationPath(leaf)
	if len(proof) != len(path)-1 {
		return fmt.Errorf("%w: proof has %d digests, expected %d", ErrProofMismatch, len(proof), len(path)-1)
	}

	cur := alg.Sum(data)
	for i, node := range path[:len(path)-1] {
		if node%2 == 1 {
			cur = alg.SumPair(cur, proof[i])
		} else {
			cur = alg.SumPair(proof[i], cur)
		}
	}
	if cur != root {
		return ErrProofMismatch
	}
	return nil
}
