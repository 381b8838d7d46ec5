// Package httpapi serves the retrieval engine as a JSON API over HTTP.
//
// Routes:
//
//	GET  /healthz                  liveness probe
//	POST /v1/search                hybrid search
//	POST /v1/route                 staged query pipeline
//	POST /v1/metadata/extract      metadata extraction
//	POST /v1/metadata/invalidate   drop a cached extraction
//	GET  /v1/status                index and cache statistics
//
// Request bodies are JSON with camelCase keys and unknown fields are
// rejected. Errors are returned as {"error": "...", "stage": "..."} with a
// status chosen by StatusCode: 400 for invalid input, 429 when the model
// provider throttles, 503 when a collaborator is unavailable and 504 when a
// stage deadline expires.
package httpapi
