package utils

import "net/url"

// BuildLink appends the token to base+path as a query parameter.
func BuildLink(base, path, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return base + path + "?" + q.Encode()
}
