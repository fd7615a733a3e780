// Package relay implements the POST /analyze endpoint.
//
// A request is read as a streaming multipart form. The audio part is staged
// to disk, probed, and forwarded to the analysis service together with the
// language and optional lyrics. The downstream JSON body is returned to the
// caller unchanged. Every failure is mapped by Classify onto a small set of
// fixed messages, and the staged file is removed on every path.
package relay
