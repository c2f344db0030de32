// Command mediactl runs media manager operations from the command line
// against the same media directory and index as the server.
//
// It reads the server's configuration (environment and optional .env file)
// and acts as the system principal, so every operation is allowed.
//
// Usage:
//
//	mediactl rebuild [dir]
//	mediactl list [dir] [--type image] [--sort name|size|date] [--order asc|desc]
//	mediactl search <query>
//	mediactl mkdir <dir>
//	mediactl thumbs <path> [--force]
//	mediactl peek <archive.zip>
//	mediactl inflate <archive.zip> [--no-subdir]
//	mediactl rm <path>
//
// Log output is limited to warnings unless --verbose is given.
package main
