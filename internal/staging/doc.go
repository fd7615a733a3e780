// Package staging manages the transient files that hold uploaded payloads
// for the lifetime of a single request.
package staging
