// Package opencode is a client SDK for driving a conversational coding
// agent. The same API works over two backends: spawning the agent as a
// local subprocess speaking JSON-RPC over stdio, or talking to a
// running agent server over REST and Server-Sent-Events.
//
// One-shot:
//
//	res, err := opencode.Query(ctx, "explain this repo",
//		opencode.WithCWD("/path/to/repo"))
//
// Conversation:
//
//	client := opencode.NewClient(opencode.WithServerURL("http://127.0.0.1:4096"))
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Disconnect()
//
//	if err := client.Query(ctx, "add a test for the parser"); err != nil { ... }
//	stream, err := client.ReceiveResponse(ctx)
//	if err != nil { ... }
//	for msg := range stream.Messages() {
//		switch m := msg.(type) {
//		case agentmsg.AssistantMessage:
//			// text deltas and tool invocations
//		case agentmsg.ResultMessage:
//			// turn finished
//		}
//	}
//
// Both backends emit the same ordered vocabulary, defined in package
// agentmsg: SystemMessage for side-channel information, AssistantMessage
// for model output, and exactly one ResultMessage per turn.
package opencode
