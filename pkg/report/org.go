package report

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// OrgLabel derives a short organization label from an email domain, e.g.
// "cs.stanford.edu" → "stanford.edu". Free-mail and malformed addresses
// yield "".
func OrgLabel(email string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || domain == "" {
		return ""
	}
	domain = strings.ToLower(domain)
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return ""
	}
	if _, free := freeMail[etld1]; free {
		return ""
	}
	return etld1
}

var freeMail = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"yahoo.com":      {},
	"icloud.com":     {},
	"proton.me":      {},
	"protonmail.com": {},
}
