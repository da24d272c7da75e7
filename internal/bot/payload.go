package bot

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// payloadSeparator splits the tenant slug from the encoded return query in a
// /start deep link, e.g. "glow-spa__c3RhdHVzPWNhbmNlbGVk".
const payloadSeparator = "__"

// parseStartPayload decodes the argument of /start. The payment provider sends
// visitors back with the booking page query (status=canceled&product_id=...)
// base64url-encoded after the slug.
func parseStartPayload(payload string) (slug string, query url.Values, err error) {
	payload = strings.TrimSpace(payload)
	slug, encoded, found := strings.Cut(payload, payloadSeparator)
	if !found || encoded == "" {
		return slug, url.Values{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return slug, nil, fmt.Errorf("decode start payload: %w", err)
	}
	query, err = url.ParseQuery(string(raw))
	if err != nil {
		return slug, nil, fmt.Errorf("parse start payload: %w", err)
	}
	return slug, query, nil
}
