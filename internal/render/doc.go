// Package render turns user-authored dream text into HTML that is safe to
// embed in a client page.
package render
