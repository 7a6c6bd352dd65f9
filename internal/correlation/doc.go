// Package correlation recovers RPC identity from the bytes a transport is
// about to send.
//
// Callers that want wire timings tied to an RPC embed three textual tags in
// their outgoing metadata:
//
//	rpc_uuid   identity shared by a request and its response
//	rpc_type   "request" or "response"
//	func_name  operation name
//
// The buffer is read as a sequence of NUL-terminated runs. Within each run
// every tag is searched by substring; its value starts one delimiter byte
// after the tag, skips bytes that are not valid value characters and extends
// over the following valid ones. Valid characters are printable ASCII except
// '@'.
//
// There is no escaping. A tag name that happens to appear inside another
// value is taken at face value, and the first occurrence of a tag wins.
package correlation
