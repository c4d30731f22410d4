package models

// StateCookieWriter mirrors an authorization state into a long-lived cookie on the
// response of the current request.
type StateCookieWriter interface {
	WriteStateCookie(state string)
}

// RequestContext carries the request-scoped facts the store and the signer need:
// the requesting tenant, the host the request arrived on and an optional cookie sink.
// RequestContext 携带存储与签名所需的请求级信息：请求租户、请求主机以及可选的 Cookie 写入器。
type RequestContext struct {
	TenantID    string
	Host        string
	Scheme      string
	PrincipalID string
	Cookies     StateCookieWriter
}

// Issuer returns scheme://host, defaulting the scheme to https.
func (rc RequestContext) Issuer() string {
	scheme := rc.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + rc.Host
}
