package scenario

import (
	"math/rand/v2"
	"strings"

	"github.com/gosimple/slug"
)

var (
	companyPrefixes = []string{"Tech", "Data", "Cloud", "Digital", "Smart", "Global", "Pro", "Next", "Fast", "Prime"}
	companySuffixes = []string{"Solutions", "Systems", "Labs", "Corp", "Inc", "LLC", "Co", "Group", "Hub", "Works"}
	companyTypes    = []string{"Analytics", "Software", "Services", "Consulting", "Media", "Ventures", "Partners", "Tech", "Digital", "AI"}
)

const emailDomainMaxLen = 15

func companyName(rng *rand.Rand) string {
	pick := func(pool []string) string { return pool[rng.IntN(len(pool))] }

	switch rng.IntN(3) {
	case 0:
		return pick(companyPrefixes) + pick(companyTypes) + " " + pick(companySuffixes)
	case 1:
		return pick(companyTypes) + " " + pick(companySuffixes)
	default:
		return pick(companyPrefixes) + " " + pick(companyTypes)
	}
}

func billingEmail(company string) string {
	domain := strings.ReplaceAll(slug.Make(company), "-", "")
	if len(domain) > emailDomainMaxLen {
		domain = domain[:emailDomainMaxLen]
	}
	return "billing@" + domain + ".com"
}
