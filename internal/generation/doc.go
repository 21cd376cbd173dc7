// Package generation contains HTTP clients for the external media services
// the gateway fronts: speech transcription, comic panel rendering and
// asynchronous video generation.
//
// Every client returns ErrNotConfigured when its base URL is empty and an
// *UpstreamError (matching ErrUpstream) for transport failures and non-2xx
// responses. Context cancellation is returned as the context's error.
package generation
