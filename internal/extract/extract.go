// Package extract parses Banco de Chile credit-card notification emails into
// transaction candidates. The bank's phrasing is fixed, so extraction is a
// handful of anchored patterns over the text block that carries the purchase
// sentence.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/cuotas-app/server/internal/dates"
	"github.com/cuotas-app/server/internal/domain"
)

// anchorPhrase appears in every purchase notification ("compra por $...").
const anchorPhrase = "compra por"

var (
	// Amounts use Chilean separators: "." for thousands, "," for decimals.
	amountPattern   = regexp.MustCompile(`(?:US\$|CLP\$|\$)(\d{1,64}(?:[.,]\d{3})*(?:[.,]\d{2})?)`)
	digitsPattern   = regexp.MustCompile(`Tarjeta de Crédito \*\*\*\*(\d{4})`)
	merchantPattern = regexp.MustCompile(`en (.+?) el \d{2}/\d{2}/\d{4}`)
	datePattern     = regexp.MustCompile(`\d{2}/\d{2}/\d{4} \d{2}:\d{2}`)
	spacesPattern   = regexp.MustCompile(`\s+`)
)

// Extract parses one decoded message body (HTML or plain text) into a
// transaction candidate. It returns nil unless the amount, card digits,
// merchant and timestamp are all present; a partially matching email is
// discarded rather than defaulted. MessageID is left for the caller to fill.
func Extract(rawContent string) *domain.Candidate {
	text := anchorBlock(rawContent)
	if text == "" {
		return nil
	}

	amountMatch := amountPattern.FindStringSubmatch(text)
	if amountMatch == nil {
		return nil
	}
	amount, err := parseAmount(amountMatch[1])
	if err != nil {
		return nil
	}

	currency := domain.CLP
	if strings.Contains(text, "US$") {
		currency = domain.Dolar
	}

	digitsMatch := digitsPattern.FindStringSubmatch(text)
	if digitsMatch == nil {
		return nil
	}

	merchantMatch := merchantPattern.FindStringSubmatch(text)
	if merchantMatch == nil {
		return nil
	}
	merchant := strings.TrimSpace(spacesPattern.ReplaceAllString(merchantMatch[1], " "))

	dateToken := datePattern.FindString(text)
	if dateToken == "" {
		return nil
	}
	txDate, err := time.ParseInLocation("02/01/2006 15:04", dateToken, dates.Santiago())
	if err != nil {
		return nil
	}

	return &domain.Candidate{
		Amount:          amount,
		Currency:        currency,
		CardLastDigits:  digitsMatch[1],
		Merchant:        merchant,
		TransactionDate: txDate,
	}
}

// parseAmount normalizes Chilean separators before numeric parsing: "."
// groups thousands and "," marks decimals.
func parseAmount(s string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(s, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")
	return decimal.NewFromString(normalized)
}

// anchorBlock locates the text block holding the purchase sentence. For HTML
// bodies that is the table cell (or cells) containing the anchor phrase,
// matching how the bank lays out its notifications; for plain-text bodies
// the whole content is the block. Returns "" when the anchor is absent.
func anchorBlock(rawContent string) string {
	doc, err := html.Parse(strings.NewReader(rawContent))
	if err == nil {
		var cells []string
		collectAnchoredCells(doc, &cells)
		if len(cells) > 0 {
			return strings.Join(cells, " ")
		}
	}

	if strings.Contains(rawContent, anchorPhrase) {
		if doc != nil {
			return nodeText(doc)
		}
		return rawContent
	}
	return ""
}

// collectAnchoredCells gathers the text of every <td> whose content includes
// the anchor phrase. Nested tables yield nested matches; keeping all of them
// mirrors a ":contains" selector and the patterns above tolerate the
// repetition.
func collectAnchoredCells(n *html.Node, cells *[]string) {
	if n.Type == html.ElementNode && n.Data == "td" {
		if text := nodeText(n); strings.Contains(text, anchorPhrase) {
			*cells = append(*cells, text)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectAnchoredCells(c, cells)
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
