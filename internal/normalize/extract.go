package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/similarity"
)

// channelRules is evaluated in order against the words of a description.
var channelRules = []struct {
	channel domain.Channel
	words   []string
}{
	{domain.ChannelInstantTransfer, []string{"upi", "imps", "mmt", "bhim"}},
	{domain.ChannelWireTransfer, []string{"neft", "rtgs", "swift", "wire"}},
	{domain.ChannelATM, []string{"atm", "atw", "nwd", "cash withdrawal"}},
	{domain.ChannelCheque, []string{"chq", "cheque", "clearing", "clg"}},
	{domain.ChannelCard, []string{"pos", "card", "visa", "mastercard", "rupay", "ecom", "vps"}},
	{domain.ChannelCash, []string{"cash", "csh", "cash deposit"}},
}

// DetectChannel classifies the payment rail of a description. It returns nil when no rail
// identifier is present.
func DetectChannel(description string) *domain.Channel {
	words := " " + similarity.Process(description) + " "
	for _, rule := range channelRules {
		for _, w := range rule.words {
			if strings.Contains(words, " "+w+" ") {
				return domain.ChannelPtr(rule.channel)
			}
		}
	}
	return nil
}

var (
	railIDs = map[string]bool{
		"UPI": true, "IMPS": true, "NEFT": true, "RTGS": true, "POS": true, "ACH": true,
		"NACH": true, "ECS": true, "MMT": true, "BIL": true, "ONL": true, "INB": true,
	}
	segmentNoise = map[string]bool{
		"DR": true, "CR": true, "P2M": true, "P2A": true, "P2P": true, "PAYMENT": true,
		"PAY": true, "COLLECT": true, "REQ": true, "NA": true, "NULL": true,
	}
	bankCodes = map[string]bool{
		"HDFC": true, "ICIC": true, "SBIN": true, "UTIB": true, "YESB": true, "KKBK": true,
		"PUNB": true, "BARB": true, "IDIB": true, "INDB": true, "CNRB": true, "AXIS": true,
	}
	ifscRe      = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	posRe       = regexp.MustCompile(`(?i)^(?:POS|VPS|ECOM|PUR)\s+[0-9X*]{4,}\s+(.+?)(?:\s+\d{2}[/\-.]\d{2}.*)?$`)
	separatorRe = regexp.MustCompile(`[/|]`)
)

// stopwords never make a merchant on their own.
var stopwords = map[string]bool{
	"PAYMENT": true, "TRANSFER": true, "DEBIT": true, "CREDIT": true, "TO": true, "FROM": true,
	"BY": true, "REF": true, "TXN": true, "INR": true, "BANK": true, "ACCOUNT": true, "ATM": true,
	"CASH": true, "CHQ": true, "CHEQUE": true, "WITHDRAWAL": true, "DEPOSIT": true, "PURCHASE": true,
	"CARD": true, "UPI": true, "NEFT": true, "IMPS": true, "RTGS": true, "POS": true, "THE": true,
	"AND": true, "FOR": true, "SENT": true, "RECEIVED": true, "USING": true, "VIA": true, "TRF": true,
	"CHARGES": true, "INTEREST": true, "ONLINE": true, "INDIA": true, "LTD": true, "PVT": true,
}

// ExtractMerchant pulls the merchant name out of a description. Segmented rail
// descriptions ("UPI/Merchant/handle/...") are read structurally; otherwise the longest
// upper-case word that is not a banking keyword is used. It returns "" when nothing fits.
func ExtractMerchant(description string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return ""
	}
	if m := segmentedMerchant(desc); m != "" {
		return m
	}
	if m := posRe.FindStringSubmatch(desc); m != nil {
		return strings.TrimSpace(m[1])
	}
	return longestKeyword(desc)
}

func segmentedMerchant(desc string) string {
	var parts []string
	switch {
	case separatorRe.MatchString(desc):
		parts = separatorRe.Split(desc, -1)
	case strings.Count(desc, "-") >= 2:
		parts = strings.Split(desc, "-")
	default:
		return ""
	}

	first := strings.Fields(strings.ToUpper(parts[0]))
	if len(first) == 0 || !railIDs[first[0]] {
		return ""
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if isNoiseSegment(p) {
			continue
		}
		return p
	}
	return ""
}

func isNoiseSegment(p string) bool {
	if p == "" || strings.Contains(p, "@") {
		return true
	}
	upper := strings.ToUpper(p)
	if railIDs[upper] || segmentNoise[upper] || bankCodes[upper] || ifscRe.MatchString(upper) {
		return true
	}
	digits, letters := 0, 0
	for _, r := range p {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters == 0 {
		return true
	}
	// reference numbers such as N123456789 or 512345678901
	return len(p) >= 6 && digits*10 >= len(p)*6
}

func longestKeyword(desc string) string {
	best, bestUpper := "", false
	for _, tok := range strings.FieldsFunc(desc, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '&' && r != '\''
	}) {
		if len(tok) < 3 || stopwords[strings.ToUpper(tok)] || railIDs[strings.ToUpper(tok)] {
			continue
		}
		upper := tok == strings.ToUpper(tok)
		switch {
		case upper && !bestUpper:
			best, bestUpper = tok, true
		case upper == bestUpper && len(tok) > len(best):
			best = tok
		}
	}
	return best
}

// Fragment carries the personally identifiable pieces of a description. It travels beside a
// transaction, is written to the vault once and is then discarded.
type Fragment struct {
	AccountNumbers []string
	Handles        []string
	Counterparty   string
}

// Empty reports whether the fragment holds nothing worth vaulting.
func (f Fragment) Empty() bool {
	return len(f.AccountNumbers) == 0 && len(f.Handles) == 0 && f.Counterparty == ""
}

var (
	accountRunRe   = regexp.MustCompile(`\d{8,20}`)
	handleRe       = regexp.MustCompile(`[A-Za-z0-9._\-]+@[A-Za-z][A-Za-z0-9.\-]*`)
	counterpartyRe = regexp.MustCompile(`(?i)\b(?:to|from|by)\s+([A-Za-z][A-Za-z .']{2,40}?)\s*(?:[/\-:]|\d|$)`)
)

// ExtractPII collects account-like digit runs, payment handles and the counterparty named
// after "to", "from" or "by".
func ExtractPII(description string) Fragment {
	var f Fragment
	for _, loc := range accountRunRe.FindAllStringIndex(description, -1) {
		// a run embedded in a longer number is not an account number
		if loc[0] > 0 && isDigit(description[loc[0]-1]) || loc[1] < len(description) && isDigit(description[loc[1]]) {
			continue
		}
		f.AccountNumbers = appendUnique(f.AccountNumbers, description[loc[0]:loc[1]])
	}
	for _, h := range handleRe.FindAllString(description, -1) {
		f.Handles = appendUnique(f.Handles, h)
	}
	if m := counterpartyRe.FindStringSubmatch(description); m != nil {
		name := strings.TrimSpace(m[1])
		if !stopwords[strings.ToUpper(strings.Fields(name)[0])] {
			f.Counterparty = name
		}
	}
	return f
}

// MaskPII replaces account-like digit runs with their last four digits and hides the user
// part of payment handles.
func MaskPII(s string) string {
	s = accountRunRe.ReplaceAllStringFunc(s, func(run string) string {
		return "XXXX" + run[len(run)-4:]
	})
	return handleRe.ReplaceAllStringFunc(s, func(h string) string {
		return "***" + h[strings.Index(h, "@"):]
	})
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
