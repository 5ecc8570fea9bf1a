package worker

// AwaitReply exposes awaitReply to the external test package.
var AwaitReply = awaitReply
