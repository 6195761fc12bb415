// Package acp implements the subprocess backend: it spawns an agent
// binary in ACP mode and speaks JSON-RPC 2.0 over newline-delimited
// JSON on the child's stdio.
//
// Basic usage:
//
//	client := acp.NewClient(acp.WithCWD("/path/to/project"))
//	if err := client.Start(ctx); err != nil { ... }
//	defer client.Stop()
//
//	if _, err := client.NewSession(ctx); err != nil { ... }
//
//	if err := client.SubmitPrompt(ctx, []agentmsg.Part{agentmsg.Text("hello")}); err != nil { ... }
//	for msg := range client.Stream(ctx).Messages() {
//		// SystemMessage, AssistantMessage, then a final ResultMessage
//	}
//
// Permission requests from the agent are answered inline by the
// configured guards; with no guards installed every request is
// approved with the agent's first allow option.
package acp
