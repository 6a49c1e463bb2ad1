// Package client implements the input and output party side of a
// collaboration.
//
// An input party registers with the coordinator, secret-shares its values
// with the providers and confirms the upload:
//
//	c, err := client.ForCollaboration(ctx, "http://coordinator:8080", collabID)
//	if err != nil {
//	    return err
//	}
//	if _, err := c.RegisterInputParty(ctx, collabID, partyID); err != nil {
//	    return err
//	}
//	ids, err := c.Upload(ctx, collabID, partyID, values)
//
// Sharing works without revealing a value to any single provider: the client
// fetches input masks from every provider under one request id, adds them up
// and uploads value - mask to all providers. The request id doubles as secret
// id.
//
// Output parties either poll ResultIDs, which reports ErrNotFinished while the
// computation runs, or serve a NotifyHandler and register its URL as output
// party endpoint. Reveal reconstructs a secret from the shares of all
// providers and checks the tag shares handed out with them.
package client
