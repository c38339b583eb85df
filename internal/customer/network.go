package customer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// networkRule maps name fragments to a retail network. Rules are checked in
// order and the first hit wins, so "ASSAI ATACADISTA" is ASSAI rather than
// a loose ATAC hit.
type networkRule struct {
	network   string
	fragments []string
}

var networkRules = []networkRule{
	{"ASSAI", []string{"ASSAI"}},
	{"ATAKAREJO", []string{"ATAKAREJO"}},
	{"ATACADAO", []string{"ATACADAO", "ATAC"}},
	{"G BARBOSA", []string{"GBARBOSA", "G BARBOSA"}},
	{"REDE MIX", []string{"RMIX", "REDEMIX", "REDE MIX"}},
	{"HIPERIDEAL", []string{"HIPERIDEAL", "SERRANA"}},
	{"MATEUS", []string{"MATEUS"}},
	{"PERINI", []string{"PERINI"}},
	{"COMPANHIA BRASILEIRA DE DISTRIBUICAO", []string{"CBD"}},
	{"SAMS", []string{"SAMS"}},
	{"COSTA DO PLAZA", []string{"CDP"}},
}

// FoldName upper-cases s and strips diacritics, so "Assaí" becomes "ASSAI".
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(strings.TrimSpace(folded))
}

// InferNetwork guesses the retail network from a store's fantasy name.
func InferNetwork(name string) (string, bool) {
	folded := FoldName(name)
	if folded == "" {
		return "", false
	}
	for _, r := range networkRules {
		for _, f := range r.fragments {
			if strings.Contains(folded, f) {
				return r.network, true
			}
		}
	}
	return "", false
}
