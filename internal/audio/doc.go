// Package audio inspects uploaded payloads before they are forwarded.
// It detects the container type from the leading bytes and extracts
// sample rate, channel count and duration from WAV headers.
package audio
