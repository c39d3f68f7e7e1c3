package subscription

import (
	"fmt"
	"strconv"

	"github.com/mpellerin42/subsync/app/models"
)

// intervalTerms holds the customer-facing wording for one billing interval,
// used in the trial-reminder email.
type intervalTerms struct {
	Period     string
	Engagement string
	PriceUnit  string
}

var termsByInterval = map[string]intervalTerms{
	models.BillingIntervalMonth: {
		Period:     "mensuel",
		Engagement: "sans engagement",
		PriceUnit:  "par mois",
	},
	models.BillingIntervalYear: {
		Period:     "annuel",
		Engagement: "engagement sur un an",
		PriceUnit:  "par an",
	},
}

// termsFor returns the display terms for a billing interval. Anything that
// is not monthly is billed yearly.
func termsFor(interval string) intervalTerms {
	if t, ok := termsByInterval[interval]; ok {
		return t
	}
	return termsByInterval[models.BillingIntervalYear]
}

func formatPricePerPeriod(price float64, interval string) string {
	return fmt.Sprintf("%s € HT %s", strconv.FormatFloat(price, 'f', -1, 64), termsFor(interval).PriceUnit)
}
