// Package agentmsg defines the normalized message vocabulary shared by
// every backend session. Both the subprocess (ACP) and HTTP (SSE)
// backends translate their native wire formats into this one set of
// types, so consumers can switch backends without changing how they
// read a turn.
package agentmsg
