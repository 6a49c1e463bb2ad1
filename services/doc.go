/*
Package services exposes the coordinator and the computation providers over HTTP.

# Coordinator

CoordinatorAPI wraps coordinator.Orchestrator. All routes live below
/collaboration and answer cross-origin requests:

  - POST   /collaboration                                   create (JSON or multipart form)
  - GET    /collaboration                                   list
  - GET    /collaboration/{id}                              get
  - DELETE /collaboration/{id}                              delete with participations and result
  - POST   /collaboration/{id}/register-input-party/{party} 200, or 208 when already registered
  - DELETE /collaboration/{id}/register-input-party/{party} withdraw before uploading
  - POST   /collaboration/{id}/register-output-party/{party}?partyClientEndpoint=URL
  - GET    /collaboration/{id}/input-parties
  - POST   /collaboration/{id}/confirm-upload/{party}       JSON array of secret ids, 208 on repeat
  - GET    /collaboration/{id}/result_ids                   409 while running, 500 on failure
  - GET    /collaboration/{id}/compute_config

Errors are rendered as {"code": status, "message": text}.

# Providers

ProviderAPI serves the secret-share endpoints for every provider index of a
protocol.ShareEngine, plus a mock of the execution endpoint:

  - GET    /{vcp}/amphora/input-masks?requestId=&count=
  - POST   /{vcp}/amphora/masked-inputs
  - GET    /{vcp}/amphora/secret-shares
  - GET    /{vcp}/amphora/secret-shares/{secretId}?requestId=
  - DELETE /{vcp}/amphora/secret-shares/{secretId}
  - POST   /{vcp}/

# Collaborators

EphemeralEngine implements coordinator.ComputationEngine by starting the
program on every provider under one game id. HTTPNotifier implements
coordinator.OutputNotifier with a PUT to {endpoint}/notify per output party.
*/
package services
