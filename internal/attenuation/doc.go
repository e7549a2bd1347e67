// Package attenuation maps relative player positions to gain and stereo pan.
//
// Every function here is pure: identical inputs produce bit-identical
// outputs, so the relay (which filters by distance) and clients (which mix)
// agree on what a listener hears. Only the horizontal (x, z) plane is used.
//
// Pan depends on the x offset alone. A speaker directly in front of or
// behind the listener is centred; front/back position is not modelled.
package attenuation
