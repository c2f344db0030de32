// Package auth authenticates API callers with bearer tokens and describes
// them to the media manager.
//
// Tokens have the form "<user>.<secret>". The token store file lists, per
// user, the bcrypt hash of the secret and the granted permissions:
//
//	tokens:
//	  - user: alice
//	    hash: "$2a$10$..."
//	    permissions: [media]
//	  - user: ops
//	    hash: "$2a$10$..."
//	    superadmin: true
//
// A permission may be limited to one storage path with "perm:scope", for
// example "media_admin:public". Use cmd/hashtoken to mint tokens.
package auth
