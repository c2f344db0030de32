// Command hashtoken creates entries for the API token store.
//
// It prompts for a secret (or generates one with --generate), hashes it
// with bcrypt and prints a YAML entry to append under "tokens:" in the
// file named by TOKENS_FILE. Clients then authenticate with
//
//	Authorization: Bearer <user>.<secret>
//
// Usage:
//
//	hashtoken <user> [--perm media] [--perm media_admin] [--superadmin] [--generate]
//
// Permissions may be scoped to a storage path as "media:public".
package main
