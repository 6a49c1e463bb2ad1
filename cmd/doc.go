// Package cmd holds the binaries of the collaboration platform.
//
// # Commands
//
// coordinator: Registers collaborations and parties, starts the MPC program
// once every input party uploaded and notifies output parties.
//
//	go run ./cmd/coordinator --config=coordinator.yaml
//	go run ./cmd/coordinator --addr=:8080 --db-host=localhost
//
// provider: Secret-share service for every provider index plus a mock of the
// execution endpoint.
//
//	go run ./cmd/provider --addr=:8081
//
// client: Input and output party tooling.
//
//	go run ./cmd/client upload --coordinator=http://localhost:8080 --collab=1 --party=1 --csv=data.csv
//	go run ./cmd/client result --coordinator=http://localhost:8080 --collab=1 --wait=5m
//
// # Configuration
//
// The coordinator and the provider read YAML configuration via --config,
// flags override file values. Without a database host the coordinator keeps
// its state in memory.
package cmd
