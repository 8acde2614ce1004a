package errors

// Advice contexts, one per workflow area.
const (
	ContextZone          = "zone"
	ContextRecords       = "records"
	ContextMailDirectory = "mail_directory"
	ContextNameservers   = "nameservers"
	ContextPropagation   = "propagation"
)

// AdviceBook maps an error kind and workflow context to remediation text.
type AdviceBook map[Kind]map[string]string

var DefaultAdvice = AdviceBook{
	KindValidation: {
		"": "Check the domain name and try again.",
	},
	KindTransient: {
		"":                   "The provider is temporarily unavailable. Try again in a few minutes.",
		ContextZone:          "The DNS host did not respond. Retry connecting the domain; the zone will not be duplicated.",
		ContextRecords:       "Some records could not be written yet. Re-run record setup to create the missing ones.",
		ContextMailDirectory: "The mail directory did not respond. Mail setup will be retried on the next connect.",
		ContextNameservers:   "Nameserver lookup timed out. Nameserver changes can take up to 48 hours; check again later.",
	},
	KindTerminal: {
		"":                   "The provider rejected the request. Check the account credentials.",
		ContextZone:          "The DNS host rejected the credentials. Make sure the API token has Zone:Edit and DNS:Edit permission.",
		ContextRecords:       "The DNS host rejected the record. Make sure the API token has DNS:Edit permission.",
		ContextMailDirectory: "The mail directory rejected the credentials. Update the mail directory API key.",
	},
	KindDuplicate: {
		"": "The resource already exists and was reused.",
	},
	KindUnknown: {
		"": "An unexpected error occurred.",
	},
}

// Lookup returns advice for err in the given context, falling back to the kind default.
func (b AdviceBook) Lookup(err error, context string) string {
	if err == nil {
		return ""
	}
	byContext, ok := b[KindOf(err)]
	if !ok {
		return ""
	}
	if advice, ok := byContext[context]; ok {
		return advice
	}
	return byContext[""]
}
