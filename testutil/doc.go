/*
Package testutil provides fixtures shared by the tests of the coordinator,
the HTTP services and the client.

# Configuration Generators

Provider configurations and collaborations use the option pattern:

	cfg := testutil.NewTestProviderConfig(
	    testutil.WithProviderURLs(providerSrv.URL, providerSrv.URL),
	)
	collab := testutil.NewTestCollaboration(
	    testutil.WithParties(2),
	    testutil.WithProviderConfig(cfg),
	)

# Collaborator Stubs

StubEngine replaces the MPC runtime and counts invocations, which is what the
exactly-once tests assert on:

	engine := testutil.NewStubEngine("result-1")
	failing := testutil.NewFailingEngine("boom")

RecordingNotifier captures output-party notifications.

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
