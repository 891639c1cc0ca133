package fyersclient

import (
	"fmt"
	"strings"
	"time"

	"breakoutBot/internal/domain"
)

// Weekly contract month codes used by the Fyers symbology: digits 1-9
// for January through September, then O, N, D.
// Format: NSE:{UNDERLYING}{YY}{monthCode}{DD}{STRIKE}{CE|PE}
var weeklyMonthCodes = [...]string{
	time.January:   "1",
	time.February:  "2",
	time.March:     "3",
	time.April:     "4",
	time.May:       "5",
	time.June:      "6",
	time.July:      "7",
	time.August:    "8",
	time.September: "9",
	time.October:   "O",
	time.November:  "N",
	time.December:  "D",
}

// WeeklyOptionSymbol builds a Fyers weekly option symbol, e.g.
// NSE:BANKNIFTY25O1451000CE for the 14 Oct 2025 51000 call.
func WeeklyOptionSymbol(underlying string, expiry time.Time, strike int, class domain.OptionClass) string {
	code := weeklyMonthCodes[expiry.Month()]
	return fmt.Sprintf("NSE:%s%02d%s%02d%d%s",
		strings.ToUpper(underlying), expiry.Year()%100, code, expiry.Day(), strike, class)
}
