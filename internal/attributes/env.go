package attributes

import (
	"github.com/mrzor/wirestamp/internal/correlation"
)

// typeEnv declares the variables expressions may use, for compile-time
// type checking.
func typeEnv() map[string]interface{} {
	return map[string]interface{}{
		"identity":  "",
		"direction": "",
		"operation": "",
		"peer":      "",
		"seq":       uint32(0),
		"size":      uint32(0),
	}
}

// keyEnv builds the evaluation environment for key.
func keyEnv(key *correlation.Key) map[string]interface{} {
	return map[string]interface{}{
		"identity":  key.Identity,
		"direction": key.Direction,
		"operation": key.Operation,
		"peer":      key.Peer,
		"seq":       key.Seq,
		"size":      key.Size,
	}
}
