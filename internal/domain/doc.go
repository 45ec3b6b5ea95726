// Package domain contains the background-verification entities the agent
// works on: BGV requests, their statuses and candidate profile analysis.
package domain
