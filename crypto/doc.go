// Package crypto provides the field arithmetic shared by the secret-sharing
// provider, the coordinator and the input-party client.
//
// Values exchanged with the MPC runtime are elements of a prime field GF(p).
// On the wire every element occupies one fixed-width word in Montgomery form
// with a runtime-specific limb layout:
//
//	word  = big-endian((v * R) mod p), padded to 2*LimbWidth bytes
//	limbs = reverse bytes inside each LimbWidth-sized limb
//	wire  = swap the two limbs
//
// Decoding applies the inverse limb layout and multiplies by R^-1. Both steps
// are needed for the runtime to read the values back.
//
// # Field
//
// DefaultField returns the 128-bit reference field used by the providers.
// NewField builds a field from the decimal constants carried in provider
// configurations and checks that R * R^-1 = 1 (mod p).
//
// Note: none of the operations here are constant-time.
package crypto
