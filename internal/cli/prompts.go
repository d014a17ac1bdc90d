package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.-]+$`)

// PromptForTicker asks the user for a stock ticker symbol.
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., AAPL, MSFT, NVDA):",
		Help:    "Ticker symbols use letters, numbers, dots, and hyphens",
	}

	err := survey.AskOne(prompt, &ticker, survey.WithValidator(func(val interface{}) error {
		str := strings.TrimSpace(strings.ToUpper(val.(string)))
		if str == "" {
			return fmt.Errorf("ticker symbol cannot be empty")
		}
		if len(str) > 10 {
			return fmt.Errorf("ticker symbol too long (max 10 characters)")
		}
		if !tickerPattern.MatchString(str) {
			return fmt.Errorf("invalid ticker format (use letters, numbers, dots, and hyphens only)")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

// PromptForRunDate asks for the run date, defaulting to today. Dates in
// the future are rejected; evidence collected for a run may never be
// dated past its run date.
func PromptForRunDate() (time.Time, error) {
	var dateStr string
	prompt := &survey.Input{
		Message: "Enter the run date (YYYY-MM-DD) or press Enter for today:",
		Default: time.Now().Format("2006-01-02"),
	}

	err := survey.AskOne(prompt, &dateStr, survey.WithValidator(func(val interface{}) error {
		str := strings.TrimSpace(val.(string))
		if str == "" {
			return nil
		}
		parsed, err := time.Parse("2006-01-02", str)
		if err != nil {
			return fmt.Errorf("invalid date format, use YYYY-MM-DD")
		}
		if parsed.After(time.Now()) {
			return fmt.Errorf("run date cannot be in the future")
		}
		if parsed.Before(time.Now().AddDate(-5, 0, 0)) {
			return fmt.Errorf("run date cannot be more than 5 years in the past")
		}
		return nil
	}))
	if err != nil {
		return time.Time{}, err
	}

	return parseRunDate(strings.TrimSpace(dateStr))
}
