// Package events decouples request handling from background execution.
//
// Services emit a RunRequestEvent; handlers registered on the emitter (the
// task package's factory handler in production) turn it into work. Payloads
// are plain JSON and never carry credentials.
package events
