// Package httpapi serves the engine over JSON/HTTP.
//
// Every response body carries a stable "code" and a human "message".
// Request bodies are validated before the engine runs; failures are 422 with
// one message per field. Errors the engine does not recognize are logged and
// answered with an opaque INTERNAL_SERVER_ERROR.
package httpapi
