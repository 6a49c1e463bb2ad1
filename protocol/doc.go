// Package protocol implements the masked-input secret-sharing protocol run by
// the computation providers and the client-side helpers that go with it.
//
// # Workflow
//
//  1. The input party asks every provider for input masks under one request
//     id (ShareEngine.InputMaskBundle). Each provider returns its half of
//     every component of every slot.
//
//  2. The input party sums the secret halves (CombineBundles) to obtain the
//     mask m and uploads b = x - m (mod p) to every provider (MaskedInput),
//     using the request id as the secret id.
//
//  3. Every provider derives its half-share from b and its half of the mask
//     (ShareEngine.ApplyMaskedInput). The halves sum to x.
//
//  4. Consumers fetch share bundles (ShareEngine.ShareBundle) carrying the
//     provider's half of the secret together with correlated randomness r, v,
//     u and w for secure multiplication.
//
// # Correlated randomness
//
// For every slot and provider i the engine keeps
//
//	w_i = s_i * (r_0 + r_1)
//	u_i = v_i * (r_0 + r_1)
//
// Masks are cached per request id for the lifetime of the engine and are
// never regenerated: shares computed against earlier masks would silently
// become wrong.
package protocol
