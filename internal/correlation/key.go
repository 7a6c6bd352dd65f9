package correlation

import "fmt"

// Tags searched for in outgoing bytes.
const (
	TagIdentity  = "rpc_uuid"
	TagDirection = "rpc_type"
	TagOperation = "func_name"
)

// Direction values carried under TagDirection.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// Key ties a transmitted byte range back to the RPC it belongs to.
//
// Extract fills Identity, Direction and Operation. Peer is filled by the
// transport, and Seq and Size are stamped by the ledger when the range is
// inserted.
type Key struct {
	Identity  string
	Direction string
	Operation string
	Peer      string
	Seq       uint32
	Size      uint32
}

// Stamp records the range's final sequence number and size.
func (k *Key) Stamp(seq, size uint32) {
	k.Seq = seq
	k.Size = size
}

func (k *Key) String() string {
	return fmt.Sprintf("%s %s %s peer=%q seq=%d size=%d",
		k.Identity, k.Direction, k.Operation, k.Peer, k.Seq, k.Size)
}
