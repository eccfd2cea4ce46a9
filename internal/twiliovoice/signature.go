package twiliovoice

import (
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's HMAC of the request URL and parameters.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks X-Twilio-Signature on webhook requests.
type SignatureValidator struct {
	validator client.RequestValidator
	baseURL   string
}

// NewSignatureValidator validates with authToken. publicBaseURL is the
// externally visible origin Twilio calls (scheme and host); when empty it
// is reconstructed from the request.
func NewSignatureValidator(authToken, publicBaseURL string) *SignatureValidator {
	return &SignatureValidator{
		validator: client.NewRequestValidator(authToken),
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
	}
}

// Valid reports whether r carries a correct signature for params.
func (v *SignatureValidator) Valid(r *http.Request, params map[string]string) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	return v.validator.Validate(v.requestURL(r), params, signature)
}

func (v *SignatureValidator) requestURL(r *http.Request) string {
	if v.baseURL != "" {
		return v.baseURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
