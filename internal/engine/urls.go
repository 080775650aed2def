package engine

import "strings"

const loginFragment = "#/login"

// LoginURL makes sure the ERP URL points at the login route.
func LoginURL(erpURL string) string {
	if strings.Contains(erpURL, loginFragment) {
		return erpURL
	}
	return stripFragment(erpURL) + loginFragment
}

// StockURL resolves the stock route against the ERP base. Absolute routes
// are used as given; relative ones become a hash route on the base.
func StockURL(erpURL, route string) string {
	if strings.HasPrefix(route, "http") {
		return route
	}
	if !strings.HasPrefix(route, "#") {
		route = "#" + route
	}
	return stripFragment(erpURL) + route
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
