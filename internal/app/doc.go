// Package app is the public surface of the feed core: identity bootstrap, publishing,
// follow bookkeeping and timeline refresh. It owns no followed-set state; callers pass
// their feed.FollowSet in and receive the updated value back.
//
// Build wires a Service from config for the command line; tests construct one with New.
package app
