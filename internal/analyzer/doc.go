// Package analyzer implements the HTTP client for the downstream analysis service.
// It streams the staged audio and its metadata as multipart form data, makes a
// single attempt per request and tags failures as timeout, unavailable,
// non-success status or invalid response.
package analyzer
