// Package session holds the current user's authentication state: the
// bearer token and the cached profile, mirrored to a storage.Store so they
// survive restarts.
//
// A Store has two states. It is anonymous when it holds no token and
// authenticated otherwise; an authenticated store may still lack a profile
// if the profile has not been fetched yet. Actions that would move the user
// to another screen return a Route instead of navigating, leaving the
// decision to the caller.
package session
