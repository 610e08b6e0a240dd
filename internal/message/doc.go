// Package message renders outreach emails from a campaign definition.
//
// A campaign is a subject template, an HTML body template and an optional
// inline logo. Templates get the Sprig function set. The embedded defaults are
// used when no campaign file is configured.
package message
