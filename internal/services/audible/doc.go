// Package audible talks to the Audible and Amazon device APIs.
//
// It covers the interactive device login (OAuthFlow), the registration that
// login produces, request signing with the device key, the activation key
// needed to decrypt AAX audio, catalog listing, and resolution of the signed
// content URL for a library item. Every authenticated call goes through
// Client, which signs the request before handing it to the underlying
// HTTP transport.
package audible
