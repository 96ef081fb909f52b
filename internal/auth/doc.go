// Package auth issues and verifies the JWTs that identify API clients.
//
// A token's subject is the client identity the registry records on every
// effect handle, so the same client is recognised across requests without
// a user database. Two roles exist: client (create, toggle and release its
// own handles, read state) and admin (everything, plus patch management and
// acting on any client's handles).
package auth
