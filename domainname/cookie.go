package domainname

// CookieDomainMatches reports whether a server at d may set a cookie with
// the Domain attribute attr (RFC 6265 section 4.1.2.3 and 5.1.3).
//
// IP literals only match themselves. For DNS names attr must be d or an
// ancestor of d, and must not be above d's registrable domain. Hosts
// without a registrable domain never match.
func (d *DomainName) CookieDomainMatches(attr *DomainName) bool {
	if attr == nil {
		return false
	}
	if d.IsIPAddr() {
		return d.hostname == attr.hostname
	}
	if !d.hasDomain {
		return false
	}
	if d.LessOrEqual(attr) != True {
		return false
	}
	return relation(compareHostnames(attr.hostname, d.domain), Less, Equal) == True
}

// CookieDomain parses host and attr and checks whether host may set a
// cookie for attr.
func (p *Parser) CookieDomain(host, attr string) (bool, error) {
	h, err := p.Parse(host)
	if err != nil {
		return false, err
	}
	a, err := p.Parse(attr)
	if err != nil {
		return false, err
	}
	return h.CookieDomainMatches(a), nil
}
