// Command relay accepts audio uploads on POST /analyze and forwards them to
// the analysis service, returning its JSON result unchanged.
//
// Usage:
//
//	# Serve with configs/config.yaml if present, defaults otherwise
//	relay
//
//	# Serve with an explicit config and listen address
//	relay serve --config /etc/relay.yaml --listen 0.0.0.0:3000
//
//	# Validate configuration and print the effective values
//	relay check-config --config /etc/relay.yaml
package main

func main() {
	Execute()
}
