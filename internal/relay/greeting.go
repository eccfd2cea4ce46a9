package relay

import "fmt"

const defaultCompany = "The Moving Company"

// Greeting is the opening prompt for a new call.
func Greeting(company string) string {
	if company == "" {
		company = defaultCompany
	}
	return fmt.Sprintf(GreetingTemplate, company)
}

// ConnectedGreeting is the shorter prompt used when a call is first seen
// already connected.
func ConnectedGreeting(company string) string {
	if company == "" {
		company = defaultCompany
	}
	return fmt.Sprintf(ConnectedGreetingTemplate, company)
}
