// Package cli provides authctl, the interactive authkeeper command-line
// client.
//
// It reads commands from stdin and drives an AuthClient:
//
//	register   create an account and sign in
//	login      sign in with email and password
//	refresh    rotate the refresh token
//	me         show the signed-in user
//	users      list all users (Admin only)
//	logout     revoke every session of the signed-in user
//	exit       leave the program
package cli
