// Package clientstate serializes the owner, viewer and gadget a request is
// made for, and protects it for the round trip through the browser.
//
// The plain form is colon-delimited key/value pairs in a fixed order:
//
//	o:<owner>:a:<app>:v:<viewer>:d:<domain>:u:<url>:m:<module>:c:<container>
//
// Values escape '%' and ':'. AESCodec encrypts that string with AES-GCM under
// a key derived from a shared secret; JWTCodec carries the same fields as
// claims of an HS256 token with an expiry.
package clientstate
