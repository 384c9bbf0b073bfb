// Package modelsocket provides a Go client for the ModelSocket protocol.
//
// ModelSocket is a WebSocket-based protocol for efficiently integrating with
// Large Language Models (LLMs). It provides streaming text generation, tool
// calling, and sequence forking capabilities.
//
// # Thread Safety
//
// [Client] and [Seq] are safe for concurrent use by multiple goroutines.
// However, only one [Seq.Generate] call can be active per sequence at a time.
// [GenStream] should only be consumed by a single goroutine.
//
// # Basic Usage
//
//	ctx := context.Background()
//
//	// Connect to server. The bearer secret comes from WithAPIKey or, if
//	// omitted, the MODELSOCKET_API_KEY environment variable.
//	client, err := modelsocket.Connect(ctx, "wss://example.com/ws")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	// Open a sequence
//	seq, err := client.Open(ctx, "model-name")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer seq.Close(ctx)
//
//	// Append user message
//	err = seq.Append(ctx, "Hello!", modelsocket.AsUser())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Generate response using iterator
//	stream, err := seq.Generate(ctx, modelsocket.GenerateAsAssistant())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for chunk, err := range stream.Chunks(ctx) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(chunk.Text)
//	}
//
// # Tool Calling
//
// Install tools on a tool-enabled sequence; the client takes care of the
// round trip itself. When the model emits a tool call, modelsocket parses
// the arguments, validates them against the tool's declared parameters,
// invokes it, and sends the result back as a tool_return bound to the
// same correlation id as the triggering call, all before the next chunk
// reaches the caller. A caller consuming [GenStream.Chunks] never sees
// the interruption.
//
//	seq, err := client.Open(ctx, "model-name", modelsocket.WithTools())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := seq.Install(ctx, weatherTool); err != nil {
//	    log.Fatal(err)
//	}
//
//	seq.Append(ctx, "What's the weather in Boston?", modelsocket.AsUser())
//	stream, err := seq.Generate(ctx, modelsocket.GenerateAsAssistant())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text, err := stream.Text(ctx)
//
// # Observability
//
// Use [WithLogger], [WithOnSend], and [WithOnReceive] to add logging and
// monitoring to the client. Without [WithLogger], Connect builds a logger
// from the MODELSOCKET_LOG environment variable (debug, info, or error);
// if that is unset too, logging is a no-op.
//
//	client, err := modelsocket.Connect(ctx, url,
//	    modelsocket.WithLogger(slog.Default()),
//	    modelsocket.WithOnSend(func(req *modelsocket.MSRequest) {
//	        metrics.RequestsSent.Inc()
//	    }),
//	)
package modelsocket
