// Package http is the REST source plumbing shared by the API connectors.
//
//	client.go      - rate-limited client with retry on 429/5xx
//	auth.go        - session cookie and OAuth2 token authenticators
//	accumulate.go  - next-page-URL pagination and page accumulation into a table
package http
